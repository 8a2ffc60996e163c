package rewards

import (
	"context"
	"time"
)

// BudgetStore persists daily budgets.
type BudgetStore interface {
	// InsertBudgetIfAbsent creates the day's row and reports whether it did.
	InsertBudgetIfAbsent(ctx context.Context, date Date, dailyCap Points) (bool, error)
	GetBudget(ctx context.Context, date Date) (DailyBudget, error)
	ListBudgets(ctx context.Context, start Date, end Date, offset int, limit int) ([]DailyBudget, error)
	CountBudgets(ctx context.Context, start Date, end Date) (int64, error)
	// CompareAndSetBudgetRemaining writes remaining and bumps the version only
	// when the stored version equals expectedVersion; otherwise ErrStaleVersion.
	CompareAndSetBudgetRemaining(ctx context.Context, budgetID int64, expectedVersion int64, remaining Points) error
}

// UserStore persists the cached balance on users.
type UserStore interface {
	GetUser(ctx context.Context, userID UserID) (User, error)
	// LockUser reads the user and holds its row lock until the transaction ends.
	LockUser(ctx context.Context, userID UserID) (User, error)
	UpdateUserPoint(ctx context.Context, userID UserID, currentPoint Points) error
}

// PointStore persists point lots and their history.
type PointStore interface {
	InsertPointLot(ctx context.Context, lot PointLot) (PointLot, error)
	GetPointLot(ctx context.Context, lotID PointLotID) (PointLot, error)
	FindPointLotBySource(ctx context.Context, source LotSource, sourceID int64) (PointLot, error)
	// ListActivePointLots returns ACTIVE lots expiring after at, ordered by
	// expiresAt then id.
	ListActivePointLots(ctx context.Context, userID UserID, at time.Time) ([]PointLot, error)
	ListLapsedPointLots(ctx context.Context, filter LapsedLotFilter) ([]PointLot, error)
	// UpdatePointLot guards on the current status; a mismatch is ErrStaleVersion.
	UpdatePointLot(ctx context.Context, lotID PointLotID, from LotStatus, remaining Points, to LotStatus) error
	InsertPointHistory(ctx context.Context, history PointHistory) error
	ListPointHistory(ctx context.Context, userID UserID, limit int) ([]PointHistory, error)
}

// ParticipationStore persists reward participations.
type ParticipationStore interface {
	FindParticipation(ctx context.Context, userID UserID, date Date) (Participation, bool, error)
	GetParticipation(ctx context.Context, participationID ParticipationID) (Participation, error)
	LastParticipation(ctx context.Context, userID UserID) (Participation, bool, error)
	// InsertParticipation maps a (user, date) uniqueness violation to ErrAlreadyParticipated.
	InsertParticipation(ctx context.Context, participation Participation) (Participation, error)
	UpdateParticipationStatus(ctx context.Context, participationID ParticipationID, from ParticipationState, to ParticipationState) error
}

// OrderStore persists products' stock counters and orders.
type OrderStore interface {
	GetProduct(ctx context.Context, productID ProductID) (Product, error)
	// AdjustProductStock adds delta to the stock counter; a result below zero
	// is rejected with ErrInsufficientStock.
	AdjustProductStock(ctx context.Context, productID ProductID, delta int64) error
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrder(ctx context.Context, orderID OrderID) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID OrderID, from OrderStatus, to OrderStatus) error
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	BudgetStore
	UserStore
	PointStore
	ParticipationStore
	OrderStore
}
