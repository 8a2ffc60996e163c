package rewards

import (
	"context"
	"fmt"
	"slices"
	"time"
)

type earnRequest struct {
	userID        UserID
	amount        Points
	source        LotSource
	sourceID      int64
	referenceType ReferenceType
	referenceID   int64
	metadata      MetadataJSON
}

type spendRequest struct {
	userID        UserID
	amount        Points
	referenceType ReferenceType
	referenceID   int64
	metadata      MetadataJSON
}

// earn mints a fresh ACTIVE lot and raises the cached balance by its amount.
func (service *Service) earn(ctx context.Context, transactionStore Store, request earnRequest) (PointLot, Points, error) {
	if request.amount <= 0 {
		return PointLot{}, 0, fmt.Errorf("%w: earn must be greater than zero", ErrInvalidAmount)
	}
	user, err := transactionStore.LockUser(ctx, request.userID)
	if err != nil {
		return PointLot{}, 0, err
	}
	now := service.now()
	lot, err := transactionStore.InsertPointLot(ctx, PointLot{
		UserID:          user.ID,
		InitialAmount:   request.amount,
		RemainingAmount: request.amount,
		EarnedAt:        now,
		ExpiresAt:       now.Add(PointLotLifetime),
		SourceType:      request.source,
		SourceID:        request.sourceID,
		Status:          LotStatusActive,
	})
	if err != nil {
		return PointLot{}, 0, err
	}
	balance := user.CurrentPoint + request.amount
	if err := transactionStore.UpdateUserPoint(ctx, user.ID, balance); err != nil {
		return PointLot{}, 0, err
	}
	transactionType := TransactionEarn
	if request.source == LotSourceRefund {
		transactionType = TransactionRefund
	}
	lotID := lot.ID
	if err := transactionStore.InsertPointHistory(ctx, PointHistory{
		UserID:        user.ID,
		LotID:         &lotID,
		Amount:        request.amount,
		Type:          transactionType,
		ReferenceType: request.referenceType,
		ReferenceID:   request.referenceID,
		BalanceAfter:  balance,
		Metadata:      request.metadata,
		CreatedAt:     now,
	}); err != nil {
		return PointLot{}, 0, err
	}
	return lot, balance, nil
}

// refundAsNewLot credits an order refund as a brand-new lot; spent lots are
// never re-activated.
func (service *Service) refundAsNewLot(ctx context.Context, transactionStore Store, order Order, metadata MetadataJSON) (PointLot, Points, error) {
	return service.earn(ctx, transactionStore, earnRequest{
		userID:        order.UserID,
		amount:        order.TotalPrice,
		source:        LotSourceRefund,
		sourceID:      order.ID.Int64(),
		referenceType: ReferenceOrder,
		referenceID:   order.ID.Int64(),
		metadata:      metadata,
	})
}

// spendFIFO consumes the user's lots in expiry order. Sufficiency is checked
// before any lot is touched.
func (service *Service) spendFIFO(ctx context.Context, transactionStore Store, request spendRequest) (Points, error) {
	if request.amount <= 0 {
		return 0, fmt.Errorf("%w: spend must be greater than zero", ErrInvalidAmount)
	}
	user, err := transactionStore.LockUser(ctx, request.userID)
	if err != nil {
		return 0, err
	}
	now := service.now()
	user, _, err = service.expireUserLots(ctx, transactionStore, user, now)
	if err != nil {
		return 0, err
	}
	lots, err := transactionStore.ListActivePointLots(ctx, user.ID, now)
	if err != nil {
		return 0, err
	}
	var available Points
	for _, lot := range lots {
		available += lot.RemainingAmount
	}
	if available < request.amount {
		return 0, InsufficientPointError{UserID: user.ID, Required: request.amount, Available: available}
	}

	balance := user.CurrentPoint
	outstanding := request.amount
	for _, lot := range lots {
		if outstanding == 0 {
			break
		}
		portion := min(lot.RemainingAmount, outstanding)
		if portion == 0 {
			continue
		}
		remaining := lot.RemainingAmount - portion
		status := LotStatusActive
		if remaining == 0 {
			status = LotStatusUsed
		}
		if err := transactionStore.UpdatePointLot(ctx, lot.ID, LotStatusActive, remaining, status); err != nil {
			return 0, err
		}
		balance -= portion
		outstanding -= portion
		lotID := lot.ID
		if err := transactionStore.InsertPointHistory(ctx, PointHistory{
			UserID:        user.ID,
			LotID:         &lotID,
			Amount:        portion,
			Type:          TransactionUse,
			ReferenceType: request.referenceType,
			ReferenceID:   request.referenceID,
			BalanceAfter:  balance,
			Metadata:      request.metadata,
			CreatedAt:     now,
		}); err != nil {
			return 0, err
		}
	}
	if balance < 0 {
		return 0, fmt.Errorf("%w: user %d cached balance would become %d", ErrInvalidBalance, user.ID, balance)
	}
	if err := transactionStore.UpdateUserPoint(ctx, user.ID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// reclaim cancels an untouched reward lot. A lot that was partly spent, fully
// spent, expired or already cancelled is reported as AlreadyUsedError.
func (service *Service) reclaim(ctx context.Context, transactionStore Store, lotID PointLotID, amount Points, referenceID int64, metadata MetadataJSON) (Points, error) {
	lot, err := transactionStore.GetPointLot(ctx, lotID)
	if err != nil {
		return 0, err
	}
	user, err := transactionStore.LockUser(ctx, lot.UserID)
	if err != nil {
		return 0, err
	}
	// Re-read under the user lock; a concurrent spend may have landed in between.
	lot, err = transactionStore.GetPointLot(ctx, lotID)
	if err != nil {
		return 0, err
	}
	now := service.now()
	if lot.Status != LotStatusActive || lot.RemainingAmount != lot.InitialAmount || !lot.ExpiresAt.After(now) {
		return 0, AlreadyUsedError{
			LotID:           lot.ID,
			Status:          lot.Status,
			InitialAmount:   lot.InitialAmount,
			RemainingAmount: lot.RemainingAmount,
		}
	}
	if amount != lot.InitialAmount {
		return 0, fmt.Errorf("%w: reclaim %d does not match lot %d amount %d", ErrInvalidAmount, amount, lot.ID, lot.InitialAmount)
	}
	if err := transactionStore.UpdatePointLot(ctx, lot.ID, LotStatusActive, lot.RemainingAmount, LotStatusCancelled); err != nil {
		return 0, err
	}
	balance := user.CurrentPoint - amount
	if balance < 0 {
		return 0, fmt.Errorf("%w: user %d cached balance would become %d", ErrInvalidBalance, user.ID, balance)
	}
	if err := transactionStore.UpdateUserPoint(ctx, user.ID, balance); err != nil {
		return 0, err
	}
	if err := transactionStore.InsertPointHistory(ctx, PointHistory{
		UserID:        user.ID,
		LotID:         &lotID,
		Amount:        amount,
		Type:          TransactionCancel,
		ReferenceType: ReferenceRoulette,
		ReferenceID:   referenceID,
		BalanceAfter:  balance,
		Metadata:      metadata,
		CreatedAt:     now,
	}); err != nil {
		return 0, err
	}
	return balance, nil
}

// expireUserLots moves the user's lapsed lots to EXPIRED. The caller must hold
// the user lock.
func (service *Service) expireUserLots(ctx context.Context, transactionStore Store, user User, now time.Time) (User, ExpirySummary, error) {
	lapsed, err := transactionStore.ListLapsedPointLots(ctx, LapsedLotFilter{UserID: user.ID, At: now})
	if err != nil {
		return User{}, ExpirySummary{}, err
	}
	if len(lapsed) == 0 {
		return user, ExpirySummary{}, nil
	}
	var summary ExpirySummary
	balance := user.CurrentPoint
	for _, lot := range lapsed {
		if err := transactionStore.UpdatePointLot(ctx, lot.ID, LotStatusActive, lot.RemainingAmount, LotStatusExpired); err != nil {
			return User{}, ExpirySummary{}, err
		}
		balance -= lot.RemainingAmount
		summary.ExpiredLots++
		summary.ExpiredPoints += lot.RemainingAmount
		lotID := lot.ID
		if err := transactionStore.InsertPointHistory(ctx, PointHistory{
			UserID:        user.ID,
			LotID:         &lotID,
			Amount:        lot.RemainingAmount,
			Type:          TransactionExpire,
			ReferenceType: ReferenceExpiry,
			ReferenceID:   lot.ID.Int64(),
			BalanceAfter:  balance,
			Metadata:      metadataOf(map[string]any{metadataKeyDate: DateOf(lot.ExpiresAt, service.location).String()}),
			CreatedAt:     now,
		}); err != nil {
			return User{}, ExpirySummary{}, err
		}
	}
	if balance < 0 {
		return User{}, ExpirySummary{}, fmt.Errorf("%w: user %d cached balance would become %d", ErrInvalidBalance, user.ID, balance)
	}
	if err := transactionStore.UpdateUserPoint(ctx, user.ID, balance); err != nil {
		return User{}, ExpirySummary{}, err
	}
	user.CurrentPoint = balance
	return user, summary, nil
}

// ExpirePoints sweeps every lapsed lot, one user transaction at a time.
func (service *Service) ExpirePoints(ctx context.Context) (ExpirySummary, error) {
	operationID := newOperationID()
	summary, err := service.expirePoints(ctx)
	service.logOperation(ctx, OperationLog{
		OperationID: operationID,
		Operation:   operationExpirePoints,
		Amount:      summary.ExpiredPoints,
		ReferenceID: int64(summary.ExpiredLots),
		Error:       err,
	})
	return summary, err
}

func (service *Service) expirePoints(ctx context.Context) (ExpirySummary, error) {
	now := service.now()
	var summary ExpirySummary
	for {
		lapsed, err := service.store.ListLapsedPointLots(ctx, LapsedLotFilter{At: now, Limit: expiryBatchSize})
		if err != nil {
			return summary, err
		}
		if len(lapsed) == 0 {
			return summary, nil
		}
		userIDs := make([]UserID, 0, len(lapsed))
		for _, lot := range lapsed {
			userIDs = append(userIDs, lot.UserID)
		}
		slices.Sort(userIDs)
		userIDs = slices.Compact(userIDs)
		for _, userID := range userIDs {
			var userSummary ExpirySummary
			err := service.runInTx(ctx, func(ctx context.Context, transactionStore Store) error {
				user, err := transactionStore.LockUser(ctx, userID)
				if err != nil {
					return err
				}
				_, userSummary, err = service.expireUserLots(ctx, transactionStore, user, now)
				return err
			})
			if err != nil {
				return summary, err
			}
			summary.ExpiredLots += userSummary.ExpiredLots
			summary.ExpiredPoints += userSummary.ExpiredPoints
		}
		if len(lapsed) < expiryBatchSize {
			return summary, nil
		}
	}
}

// PointBalance reports the cached balance with the user's live lots.
func (service *Service) PointBalance(ctx context.Context, userID UserID) (PointBalance, error) {
	user, err := service.store.GetUser(ctx, userID)
	if err != nil {
		return PointBalance{}, err
	}
	now := service.now()
	lots, err := service.store.ListActivePointLots(ctx, user.ID, now)
	if err != nil {
		return PointBalance{}, err
	}
	balance := PointBalance{CurrentPoint: user.CurrentPoint, Lots: lots}
	expiringBefore := now.Add(expiringWindow)
	for _, lot := range lots {
		balance.SpendablePoint += lot.RemainingAmount
		if !lot.ExpiresAt.After(expiringBefore) {
			balance.ExpiringWithin7Days += lot.RemainingAmount
		}
	}
	if balance.Lots == nil {
		balance.Lots = []PointLot{}
	}
	return balance, nil
}

// PointHistory lists the user's newest history rows first.
func (service *Service) PointHistory(ctx context.Context, userID UserID, limit int) ([]PointHistory, error) {
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < 0 || limit > maxPageSize {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPage, maxPageSize)
	}
	if _, err := service.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return service.store.ListPointHistory(ctx, userID, limit)
}
