package pgstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/jackc/pgx/v5"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBudget(row rowScanner) (rewards.DailyBudget, error) {
	var (
		budgetID       int64
		budgetDate     time.Time
		totalValue     int64
		remainingValue int64
		version        int64
	)
	if err := row.Scan(&budgetID, &budgetDate, &totalValue, &remainingValue, &version); err != nil {
		return rewards.DailyBudget{}, err
	}
	total, err := rewards.NewPoints(totalValue)
	if err != nil {
		return rewards.DailyBudget{}, err
	}
	remaining, err := rewards.NewPoints(remainingValue)
	if err != nil {
		return rewards.DailyBudget{}, err
	}
	if remaining > total {
		return rewards.DailyBudget{}, rewards.ErrInvalidBudgetState
	}
	return rewards.DailyBudget{
		ID:              budgetID,
		Date:            rewards.DateOf(budgetDate, time.UTC),
		TotalAmount:     total,
		RemainingAmount: remaining,
		Version:         version,
	}, nil
}

func scanUser(row rowScanner) (rewards.User, error) {
	var (
		userIDValue  int64
		nickname     string
		balanceValue int64
	)
	if err := row.Scan(&userIDValue, &nickname, &balanceValue); err != nil {
		return rewards.User{}, err
	}
	userID, err := rewards.NewUserID(userIDValue)
	if err != nil {
		return rewards.User{}, err
	}
	balance, err := rewards.NewPoints(balanceValue)
	if err != nil {
		return rewards.User{}, err
	}
	return rewards.User{ID: userID, Nickname: nickname, CurrentPoint: balance}, nil
}

func scanPointLot(row rowScanner) (rewards.PointLot, error) {
	var (
		lotIDValue     int64
		userIDValue    int64
		initialValue   int64
		remainingValue int64
		earnedAt       time.Time
		expiresAt      time.Time
		sourceValue    string
		sourceID       int64
		statusValue    string
	)
	if err := row.Scan(&lotIDValue, &userIDValue, &initialValue, &remainingValue, &earnedAt, &expiresAt, &sourceValue, &sourceID, &statusValue); err != nil {
		return rewards.PointLot{}, err
	}
	userID, err := rewards.NewUserID(userIDValue)
	if err != nil {
		return rewards.PointLot{}, err
	}
	initial, err := rewards.NewPositivePoints(initialValue)
	if err != nil {
		return rewards.PointLot{}, err
	}
	remaining, err := rewards.NewPoints(remainingValue)
	if err != nil {
		return rewards.PointLot{}, err
	}
	source, err := rewards.ParseLotSource(sourceValue)
	if err != nil {
		return rewards.PointLot{}, err
	}
	status, err := rewards.ParseLotStatus(statusValue)
	if err != nil {
		return rewards.PointLot{}, err
	}
	return rewards.PointLot{
		ID:              rewards.PointLotID(lotIDValue),
		UserID:          userID,
		InitialAmount:   initial,
		RemainingAmount: remaining,
		EarnedAt:        earnedAt.UTC(),
		ExpiresAt:       expiresAt.UTC(),
		SourceType:      source,
		SourceID:        sourceID,
		Status:          status,
	}, nil
}

func scanPointLots(rows pgx.Rows) ([]rewards.PointLot, error) {
	defer rows.Close()
	lots := make([]rewards.PointLot, 0, 8)
	for rows.Next() {
		lot, err := scanPointLot(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPointLot, errorCodeInvalid, err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectPointLot, errorCodeList, err)
	}
	return lots, nil
}

func scanPointHistories(rows pgx.Rows) ([]rewards.PointHistory, error) {
	defer rows.Close()
	histories := make([]rewards.PointHistory, 0, 32)
	for rows.Next() {
		var (
			historyID     int64
			userIDValue   int64
			lotIDValue    *int64
			amountValue   int64
			typeValue     string
			referenceType string
			referenceID   int64
			balanceValue  int64
			metadataValue string
			createdAt     time.Time
		)
		if err := rows.Scan(&historyID, &userIDValue, &lotIDValue, &amountValue, &typeValue, &referenceType, &referenceID, &balanceValue, &metadataValue, &createdAt); err != nil {
			return nil, err
		}
		userID, err := rewards.NewUserID(userIDValue)
		if err != nil {
			return nil, err
		}
		amount, err := rewards.NewPoints(amountValue)
		if err != nil {
			return nil, err
		}
		transactionType, err := rewards.ParseTransactionType(typeValue)
		if err != nil {
			return nil, err
		}
		balanceAfter, err := rewards.NewPoints(balanceValue)
		if err != nil {
			return nil, err
		}
		metadata, err := rewards.NewMetadataJSON(metadataValue)
		if err != nil {
			return nil, err
		}
		var lotID *rewards.PointLotID
		if lotIDValue != nil {
			value := rewards.PointLotID(*lotIDValue)
			lotID = &value
		}
		histories = append(histories, rewards.PointHistory{
			ID:            historyID,
			UserID:        userID,
			LotID:         lotID,
			Amount:        amount,
			Type:          transactionType,
			ReferenceType: rewards.ReferenceType(referenceType),
			ReferenceID:   referenceID,
			BalanceAfter:  balanceAfter,
			Metadata:      metadata,
			CreatedAt:     createdAt.UTC(),
		})
	}
	return histories, rows.Err()
}

func scanParticipation(row rowScanner) (rewards.Participation, error) {
	var (
		participationIDValue int64
		userIDValue          int64
		participatedDate     time.Time
		wonValue             int64
		dailyBudgetID        int64
		statusValue          string
		createdAt            time.Time
	)
	if err := row.Scan(&participationIDValue, &userIDValue, &participatedDate, &wonValue, &dailyBudgetID, &statusValue, &createdAt); err != nil {
		return rewards.Participation{}, err
	}
	participationID, err := rewards.NewParticipationID(participationIDValue)
	if err != nil {
		return rewards.Participation{}, err
	}
	userID, err := rewards.NewUserID(userIDValue)
	if err != nil {
		return rewards.Participation{}, err
	}
	wonAmount, err := rewards.NewPositivePoints(wonValue)
	if err != nil {
		return rewards.Participation{}, err
	}
	state, err := rewards.ParseParticipationState(statusValue)
	if err != nil {
		return rewards.Participation{}, err
	}
	return rewards.Participation{
		ID:            participationID,
		UserID:        userID,
		Date:          rewards.DateOf(participatedDate, time.UTC),
		WonAmount:     wonAmount,
		DailyBudgetID: dailyBudgetID,
		Status:        state,
		CreatedAt:     createdAt.UTC(),
	}, nil
}

func scanProduct(row rowScanner) (rewards.Product, error) {
	var (
		productIDValue int64
		name           string
		priceValue     int64
		stock          int64
		active         bool
	)
	if err := row.Scan(&productIDValue, &name, &priceValue, &stock, &active); err != nil {
		return rewards.Product{}, err
	}
	productID, err := rewards.NewProductID(productIDValue)
	if err != nil {
		return rewards.Product{}, err
	}
	price, err := rewards.NewPoints(priceValue)
	if err != nil {
		return rewards.Product{}, err
	}
	if stock < 0 {
		return rewards.Product{}, rewards.ErrInvalidQuantity
	}
	return rewards.Product{ID: productID, Name: name, Price: price, Stock: stock, Active: active}, nil
}

func scanOrder(row rowScanner) (rewards.Order, error) {
	var (
		orderIDValue   int64
		userIDValue    int64
		productIDValue int64
		productName    string
		unitPriceValue int64
		quantity       int64
		totalValue     int64
		statusValue    string
		createdAt      time.Time
	)
	if err := row.Scan(&orderIDValue, &userIDValue, &productIDValue, &productName, &unitPriceValue, &quantity, &totalValue, &statusValue, &createdAt); err != nil {
		return rewards.Order{}, err
	}
	orderID, err := rewards.NewOrderID(orderIDValue)
	if err != nil {
		return rewards.Order{}, err
	}
	userID, err := rewards.NewUserID(userIDValue)
	if err != nil {
		return rewards.Order{}, err
	}
	productID, err := rewards.NewProductID(productIDValue)
	if err != nil {
		return rewards.Order{}, err
	}
	unitPrice, err := rewards.NewPoints(unitPriceValue)
	if err != nil {
		return rewards.Order{}, err
	}
	totalPrice, err := rewards.NewPoints(totalValue)
	if err != nil {
		return rewards.Order{}, err
	}
	status, err := rewards.ParseOrderStatus(statusValue)
	if err != nil {
		return rewards.Order{}, err
	}
	return rewards.Order{
		ID:          orderID,
		UserID:      userID,
		ProductID:   productID,
		ProductName: productName,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
		TotalPrice:  totalPrice,
		Status:      status,
		CreatedAt:   createdAt.UTC(),
	}, nil
}
