package rewards

import (
	"context"
	"fmt"
)

// Participate runs the once-per-day draw for userID on today. The amount is
// drawn once; transaction retries reuse it.
func (service *Service) Participate(ctx context.Context, userID UserID, today Date) (ParticipationResult, error) {
	operationID := newOperationID()
	result, err := service.participate(ctx, userID, today)
	service.logOperation(ctx, OperationLog{
		OperationID: operationID,
		Operation:   operationParticipate,
		UserID:      userID,
		Amount:      result.WonAmount,
		ReferenceID: result.ParticipationID.Int64(),
		Error:       err,
	})
	if err != nil {
		return ParticipationResult{}, err
	}
	service.publish(ctx, Event{
		Type:        EventParticipationWon,
		OperationID: operationID,
		UserID:      userID.Int64(),
		Amount:      result.WonAmount.Int64(),
		ReferenceID: result.ParticipationID.Int64(),
		Date:        today.String(),
	})
	return result, nil
}

func (service *Service) participate(ctx context.Context, userID UserID, today Date) (ParticipationResult, error) {
	if userID <= 0 {
		return ParticipationResult{}, fmt.Errorf("%w: must be positive", ErrInvalidUserID)
	}
	if today.IsZero() {
		return ParticipationResult{}, fmt.Errorf("%w: participation date is required", ErrInvalidDate)
	}
	wonAmount, err := service.drawReward()
	if err != nil {
		return ParticipationResult{}, err
	}
	var result ParticipationResult
	err = service.runInTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetUser(ctx, userID); err != nil {
			return err
		}
		if _, found, err := transactionStore.FindParticipation(ctx, userID, today); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: user %d on %s", ErrAlreadyParticipated, userID, today)
		}
		budget, err := service.debitBudget(ctx, transactionStore, today, wonAmount)
		if err != nil {
			return err
		}
		participation, err := transactionStore.InsertParticipation(ctx, Participation{
			UserID:        userID,
			Date:          today,
			WonAmount:     wonAmount,
			DailyBudgetID: budget.ID,
			Status:        ParticipationSuccess,
			CreatedAt:     service.now(),
		})
		if err != nil {
			return err
		}
		if _, _, err := service.earn(ctx, transactionStore, earnRequest{
			userID:        userID,
			amount:        wonAmount,
			source:        LotSourceReward,
			sourceID:      participation.ID.Int64(),
			referenceType: ReferenceRoulette,
			referenceID:   participation.ID.Int64(),
			metadata:      metadataOf(map[string]any{metadataKeyDate: today.String()}),
		}); err != nil {
			return err
		}
		result = ParticipationResult{
			ParticipationID: participation.ID,
			WonAmount:       wonAmount,
			RemainingBudget: budget.RemainingAmount,
		}
		return nil
	})
	if err != nil {
		return ParticipationResult{}, err
	}
	return result, nil
}

func (service *Service) drawReward() (Points, error) {
	wonAmount, err := service.drawer.Draw()
	if err != nil {
		return 0, err
	}
	if wonAmount <= 0 {
		return 0, fmt.Errorf("%w: drawn reward %d", ErrInvalidAmount, wonAmount)
	}
	return wonAmount, nil
}

// ParticipationStatus is the read-only view of userID's day.
func (service *Service) ParticipationStatus(ctx context.Context, userID UserID, today Date) (ParticipationStatus, error) {
	if today.IsZero() {
		return ParticipationStatus{}, fmt.Errorf("%w: participation date is required", ErrInvalidDate)
	}
	if _, err := service.store.GetUser(ctx, userID); err != nil {
		return ParticipationStatus{}, err
	}
	_, participated, err := service.store.FindParticipation(ctx, userID, today)
	if err != nil {
		return ParticipationStatus{}, err
	}
	remaining, err := service.remainingBudget(ctx, today)
	if err != nil {
		return ParticipationStatus{}, err
	}
	status := ParticipationStatus{HasParticipated: participated, RemainingBudget: remaining}
	last, found, err := service.store.LastParticipation(ctx, userID)
	if err != nil {
		return ParticipationStatus{}, err
	}
	if found {
		status.LastParticipation = &last
	}
	return status, nil
}

// CancelParticipation reverses a reward: the lot is reclaimed, the
// participation cancelled and the amount credited back to its day. A lot
// that was touched since it was minted blocks the whole cancellation.
func (service *Service) CancelParticipation(ctx context.Context, participationID ParticipationID) (ParticipationSnapshot, error) {
	operationID := newOperationID()
	snapshot, err := service.cancelParticipation(ctx, participationID)
	service.logOperation(ctx, OperationLog{
		OperationID: operationID,
		Operation:   operationCancelParticipation,
		UserID:      snapshot.UserID,
		Amount:      snapshot.WonAmount,
		ReferenceID: participationID.Int64(),
		Error:       err,
	})
	if err != nil {
		return ParticipationSnapshot{}, err
	}
	service.publish(ctx, Event{
		Type:        EventParticipationCancelled,
		OperationID: operationID,
		UserID:      snapshot.UserID.Int64(),
		Amount:      snapshot.WonAmount.Int64(),
		ReferenceID: participationID.Int64(),
		Date:        snapshot.Date.String(),
	})
	return snapshot, nil
}

func (service *Service) cancelParticipation(ctx context.Context, participationID ParticipationID) (ParticipationSnapshot, error) {
	if participationID <= 0 {
		return ParticipationSnapshot{}, fmt.Errorf("%w: must be positive", ErrInvalidParticipationID)
	}
	var snapshot ParticipationSnapshot
	err := service.runInTx(ctx, func(ctx context.Context, transactionStore Store) error {
		participation, err := transactionStore.GetParticipation(ctx, participationID)
		if err != nil {
			return err
		}
		if participation.Status == ParticipationCancelled {
			return fmt.Errorf("%w: participation %d", ErrAlreadyCancelled, participationID)
		}
		lot, err := transactionStore.FindPointLotBySource(ctx, LotSourceReward, participationID.Int64())
		if err != nil {
			return err
		}
		metadata := metadataOf(map[string]any{metadataKeyDate: participation.Date.String()})
		if _, err := service.reclaim(ctx, transactionStore, lot.ID, participation.WonAmount, participationID.Int64(), metadata); err != nil {
			return err
		}
		if err := transactionStore.UpdateParticipationStatus(ctx, participationID, ParticipationSuccess, ParticipationCancelled); err != nil {
			return err
		}
		budget, err := service.creditBudget(ctx, transactionStore, participation.Date, participation.WonAmount)
		if err != nil {
			return err
		}
		participation.Status = ParticipationCancelled
		snapshot = ParticipationSnapshot{Participation: participation, RemainingBudget: budget.RemainingAmount}
		return nil
	})
	if err != nil {
		return ParticipationSnapshot{}, err
	}
	return snapshot, nil
}
