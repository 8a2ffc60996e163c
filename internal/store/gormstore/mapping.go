package gormstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
)

func mapBudget(row DailyBudget) (rewards.DailyBudget, error) {
	total, err := rewards.NewPoints(row.TotalAmount)
	if err != nil {
		return rewards.DailyBudget{}, err
	}
	remaining, err := rewards.NewPoints(row.RemainingAmount)
	if err != nil {
		return rewards.DailyBudget{}, err
	}
	if remaining > total {
		return rewards.DailyBudget{}, rewards.ErrInvalidBudgetState
	}
	return rewards.DailyBudget{
		ID:              row.ID,
		Date:            rewards.DateOf(row.BudgetDate, time.UTC),
		TotalAmount:     total,
		RemainingAmount: remaining,
		Version:         row.Version,
	}, nil
}

func mapUser(row User) (rewards.User, error) {
	userID, err := rewards.NewUserID(row.ID)
	if err != nil {
		return rewards.User{}, err
	}
	balance, err := rewards.NewPoints(row.CurrentPoint)
	if err != nil {
		return rewards.User{}, err
	}
	return rewards.User{ID: userID, Nickname: row.Nickname, CurrentPoint: balance}, nil
}

func mapPointLot(row PointLot) (rewards.PointLot, error) {
	userID, err := rewards.NewUserID(row.UserID)
	if err != nil {
		return rewards.PointLot{}, err
	}
	initial, err := rewards.NewPositivePoints(row.InitialAmount)
	if err != nil {
		return rewards.PointLot{}, err
	}
	remaining, err := rewards.NewPoints(row.RemainingAmount)
	if err != nil {
		return rewards.PointLot{}, err
	}
	source, err := rewards.ParseLotSource(row.SourceType)
	if err != nil {
		return rewards.PointLot{}, err
	}
	status, err := rewards.ParseLotStatus(row.Status)
	if err != nil {
		return rewards.PointLot{}, err
	}
	return rewards.PointLot{
		ID:              rewards.PointLotID(row.ID),
		UserID:          userID,
		InitialAmount:   initial,
		RemainingAmount: remaining,
		EarnedAt:        row.EarnedAt.UTC(),
		ExpiresAt:       row.ExpiresAt.UTC(),
		SourceType:      source,
		SourceID:        row.SourceID,
		Status:          status,
	}, nil
}

func mapPointLots(rows []PointLot) ([]rewards.PointLot, error) {
	lots := make([]rewards.PointLot, 0, len(rows))
	for _, row := range rows {
		lot, err := mapPointLot(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPointLot, errorCodeInvalid, err)
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func mapPointHistory(row PointHistory) (rewards.PointHistory, error) {
	userID, err := rewards.NewUserID(row.UserID)
	if err != nil {
		return rewards.PointHistory{}, err
	}
	amount, err := rewards.NewPoints(row.Amount)
	if err != nil {
		return rewards.PointHistory{}, err
	}
	transactionType, err := rewards.ParseTransactionType(row.TransactionType)
	if err != nil {
		return rewards.PointHistory{}, err
	}
	balanceAfter, err := rewards.NewPoints(row.BalanceAfter)
	if err != nil {
		return rewards.PointHistory{}, err
	}
	metadata, err := rewards.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return rewards.PointHistory{}, err
	}
	var lotID *rewards.PointLotID
	if row.LotID != nil {
		value := rewards.PointLotID(*row.LotID)
		lotID = &value
	}
	return rewards.PointHistory{
		ID:            row.ID,
		UserID:        userID,
		LotID:         lotID,
		Amount:        amount,
		Type:          transactionType,
		ReferenceType: rewards.ReferenceType(row.ReferenceType),
		ReferenceID:   row.ReferenceID,
		BalanceAfter:  balanceAfter,
		Metadata:      metadata,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func mapParticipation(row RewardParticipation) (rewards.Participation, error) {
	participationID, err := rewards.NewParticipationID(row.ID)
	if err != nil {
		return rewards.Participation{}, err
	}
	userID, err := rewards.NewUserID(row.UserID)
	if err != nil {
		return rewards.Participation{}, err
	}
	wonAmount, err := rewards.NewPositivePoints(row.WonAmount)
	if err != nil {
		return rewards.Participation{}, err
	}
	state, err := rewards.ParseParticipationState(row.Status)
	if err != nil {
		return rewards.Participation{}, err
	}
	return rewards.Participation{
		ID:            participationID,
		UserID:        userID,
		Date:          rewards.DateOf(row.ParticipatedDate, time.UTC),
		WonAmount:     wonAmount,
		DailyBudgetID: row.DailyBudgetID,
		Status:        state,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func mapProduct(row Product) (rewards.Product, error) {
	productID, err := rewards.NewProductID(row.ID)
	if err != nil {
		return rewards.Product{}, err
	}
	price, err := rewards.NewPoints(row.Price)
	if err != nil {
		return rewards.Product{}, err
	}
	if row.Stock < 0 {
		return rewards.Product{}, rewards.ErrInvalidQuantity
	}
	return rewards.Product{
		ID:     productID,
		Name:   row.Name,
		Price:  price,
		Stock:  row.Stock,
		Active: row.Active,
	}, nil
}

func mapOrder(row Order) (rewards.Order, error) {
	orderID, err := rewards.NewOrderID(row.ID)
	if err != nil {
		return rewards.Order{}, err
	}
	userID, err := rewards.NewUserID(row.UserID)
	if err != nil {
		return rewards.Order{}, err
	}
	productID, err := rewards.NewProductID(row.ProductID)
	if err != nil {
		return rewards.Order{}, err
	}
	unitPrice, err := rewards.NewPoints(row.UnitPrice)
	if err != nil {
		return rewards.Order{}, err
	}
	totalPrice, err := rewards.NewPoints(row.TotalPrice)
	if err != nil {
		return rewards.Order{}, err
	}
	status, err := rewards.ParseOrderStatus(row.Status)
	if err != nil {
		return rewards.Order{}, err
	}
	return rewards.Order{
		ID:          orderID,
		UserID:      userID,
		ProductID:   productID,
		ProductName: row.ProductName,
		UnitPrice:   unitPrice,
		Quantity:    row.Quantity,
		TotalPrice:  totalPrice,
		Status:      status,
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}
