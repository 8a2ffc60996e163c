// Package memstore keeps the reward program in process memory. Transactions
// are serialized by one mutex and roll back by discarding a working copy.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
)

const (
	errorOperationStore       = "store"
	errorSubjectBudget        = "budget"
	errorSubjectUser          = "user"
	errorSubjectPointLot      = "point_lot"
	errorSubjectParticipation = "participation"
	errorSubjectProduct       = "product"
	errorSubjectOrder         = "order"
	errorCodeAdjustStock      = "adjust_stock"
	errorCodeCompareAndSet    = "compare_and_set"
	errorCodeCreate           = "create"
	errorCodeDuplicate        = "duplicate"
	errorCodeGet              = "get"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeLookup           = "lookup"
	errorCodeUpdate           = "update"
	errorCodeUpdatePoint      = "update_point"
	errorCodeUpdateStatus     = "update_status"
)

type dataset struct {
	sequence       int64
	budgets        map[rewards.Date]rewards.DailyBudget
	users          map[rewards.UserID]rewards.User
	lots           map[rewards.PointLotID]rewards.PointLot
	histories      []rewards.PointHistory
	participations map[rewards.ParticipationID]rewards.Participation
	products       map[rewards.ProductID]rewards.Product
	orders         map[rewards.OrderID]rewards.Order
}

func newDataset() *dataset {
	return &dataset{
		budgets:        map[rewards.Date]rewards.DailyBudget{},
		users:          map[rewards.UserID]rewards.User{},
		lots:           map[rewards.PointLotID]rewards.PointLot{},
		participations: map[rewards.ParticipationID]rewards.Participation{},
		products:       map[rewards.ProductID]rewards.Product{},
		orders:         map[rewards.OrderID]rewards.Order{},
	}
}

func (data *dataset) clone() *dataset {
	return &dataset{
		sequence:       data.sequence,
		budgets:        maps.Clone(data.budgets),
		users:          maps.Clone(data.users),
		lots:           maps.Clone(data.lots),
		histories:      slices.Clone(data.histories),
		participations: maps.Clone(data.participations),
		products:       maps.Clone(data.products),
		orders:         maps.Clone(data.orders),
	}
}

func (data *dataset) nextID() int64 {
	data.sequence++
	return data.sequence
}

// Store implements rewards.Store in memory.
type Store struct {
	mu            *sync.Mutex
	data          *dataset
	inTransaction bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, data: newDataset()}
}

// WithTx runs fn against a working copy that replaces the committed data only
// when fn succeeds.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	if store.inTransaction {
		return fn(ctx, store)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	working := &Store{mu: store.mu, data: store.data.clone(), inTransaction: true}
	if err := fn(ctx, working); err != nil {
		return err
	}
	store.data = working.data
	return nil
}

func (store *Store) guard() func() {
	if store.inTransaction {
		return func() {}
	}
	store.mu.Lock()
	return store.mu.Unlock
}

// CreateUser registers a member with a zero balance.
func (store *Store) CreateUser(_ context.Context, nickname string) (rewards.User, error) {
	defer store.guard()()
	for _, existing := range store.data.users {
		if existing.Nickname == nickname {
			return rewards.User{}, wrapStoreError(errorSubjectUser, errorCodeDuplicate, fmt.Errorf("%w: %q", rewards.ErrNicknameTaken, nickname))
		}
	}
	user := rewards.User{ID: rewards.UserID(store.data.nextID()), Nickname: nickname}
	store.data.users[user.ID] = user
	return user, nil
}

// CreateProduct registers a catalog product.
func (store *Store) CreateProduct(_ context.Context, product rewards.Product) (rewards.Product, error) {
	if product.Price < 0 || product.Stock < 0 {
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeCreate, fmt.Errorf("%w: price and stock must not be negative", rewards.ErrInvalidAmount))
	}
	defer store.guard()()
	product.ID = rewards.ProductID(store.data.nextID())
	store.data.products[product.ID] = product
	return product, nil
}

func (store *Store) InsertBudgetIfAbsent(_ context.Context, date rewards.Date, dailyCap rewards.Points) (bool, error) {
	defer store.guard()()
	if _, exists := store.data.budgets[date]; exists {
		return false, nil
	}
	store.data.budgets[date] = rewards.DailyBudget{
		ID:              store.data.nextID(),
		Date:            date,
		TotalAmount:     dailyCap,
		RemainingAmount: dailyCap,
	}
	return true, nil
}

func (store *Store) GetBudget(_ context.Context, date rewards.Date) (rewards.DailyBudget, error) {
	defer store.guard()()
	budget, exists := store.data.budgets[date]
	if !exists {
		return rewards.DailyBudget{}, wrapStoreError(errorSubjectBudget, errorCodeGet, rewards.ErrBudgetNotFound)
	}
	return budget, nil
}

func (store *Store) ListBudgets(_ context.Context, start rewards.Date, end rewards.Date, offset int, limit int) ([]rewards.DailyBudget, error) {
	defer store.guard()()
	budgets := store.budgetsBetween(start, end)
	return window(budgets, offset, limit), nil
}

func (store *Store) CountBudgets(_ context.Context, start rewards.Date, end rewards.Date) (int64, error) {
	defer store.guard()()
	return int64(len(store.budgetsBetween(start, end))), nil
}

func (store *Store) budgetsBetween(start rewards.Date, end rewards.Date) []rewards.DailyBudget {
	budgets := make([]rewards.DailyBudget, 0)
	for date, budget := range store.data.budgets {
		if date.Before(start) || date.After(end) {
			continue
		}
		budgets = append(budgets, budget)
	}
	slices.SortFunc(budgets, func(left rewards.DailyBudget, right rewards.DailyBudget) int {
		return left.Date.Time(time.UTC).Compare(right.Date.Time(time.UTC))
	})
	return budgets
}

func (store *Store) CompareAndSetBudgetRemaining(_ context.Context, budgetID int64, expectedVersion int64, remaining rewards.Points) error {
	defer store.guard()()
	for date, budget := range store.data.budgets {
		if budget.ID != budgetID {
			continue
		}
		if budget.Version != expectedVersion {
			return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, rewards.ErrStaleVersion)
		}
		if remaining < 0 || remaining > budget.TotalAmount {
			return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, rewards.ErrInvalidBudgetState)
		}
		budget.RemainingAmount = remaining
		budget.Version++
		store.data.budgets[date] = budget
		return nil
	}
	return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, rewards.ErrBudgetNotFound)
}

func (store *Store) GetUser(_ context.Context, userID rewards.UserID) (rewards.User, error) {
	defer store.guard()()
	user, exists := store.data.users[userID]
	if !exists {
		return rewards.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, rewards.ErrUserNotFound)
	}
	return user, nil
}

// LockUser is GetUser; the store mutex already serializes transactions.
func (store *Store) LockUser(ctx context.Context, userID rewards.UserID) (rewards.User, error) {
	return store.GetUser(ctx, userID)
}

func (store *Store) UpdateUserPoint(_ context.Context, userID rewards.UserID, currentPoint rewards.Points) error {
	defer store.guard()()
	user, exists := store.data.users[userID]
	if !exists {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, rewards.ErrUserNotFound)
	}
	if currentPoint < 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, rewards.ErrInvalidBalance)
	}
	user.CurrentPoint = currentPoint
	store.data.users[userID] = user
	return nil
}

func (store *Store) InsertPointLot(_ context.Context, lot rewards.PointLot) (rewards.PointLot, error) {
	defer store.guard()()
	if _, exists := store.data.users[lot.UserID]; !exists {
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeInsert, rewards.ErrUserNotFound)
	}
	lot.ID = rewards.PointLotID(store.data.nextID())
	store.data.lots[lot.ID] = lot
	return lot, nil
}

func (store *Store) GetPointLot(_ context.Context, lotID rewards.PointLotID) (rewards.PointLot, error) {
	defer store.guard()()
	lot, exists := store.data.lots[lotID]
	if !exists {
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeGet, rewards.ErrPointLotNotFound)
	}
	return lot, nil
}

func (store *Store) FindPointLotBySource(_ context.Context, source rewards.LotSource, sourceID int64) (rewards.PointLot, error) {
	defer store.guard()()
	for _, lot := range store.data.lots {
		if lot.SourceType == source && lot.SourceID == sourceID {
			return lot, nil
		}
	}
	return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeLookup, rewards.ErrPointLotNotFound)
}

func (store *Store) ListActivePointLots(_ context.Context, userID rewards.UserID, at time.Time) ([]rewards.PointLot, error) {
	defer store.guard()()
	return store.selectLots(func(lot rewards.PointLot) bool {
		return lot.UserID == userID && lot.Status == rewards.LotStatusActive && lot.ExpiresAt.After(at)
	}, 0), nil
}

func (store *Store) ListLapsedPointLots(_ context.Context, filter rewards.LapsedLotFilter) ([]rewards.PointLot, error) {
	defer store.guard()()
	return store.selectLots(func(lot rewards.PointLot) bool {
		if filter.UserID != 0 && lot.UserID != filter.UserID {
			return false
		}
		return lot.Status == rewards.LotStatusActive && !lot.ExpiresAt.After(filter.At)
	}, filter.Limit), nil
}

func (store *Store) selectLots(keep func(rewards.PointLot) bool, limit int) []rewards.PointLot {
	lots := make([]rewards.PointLot, 0)
	for _, lot := range store.data.lots {
		if keep(lot) {
			lots = append(lots, lot)
		}
	}
	slices.SortFunc(lots, compareLotsByExpiry)
	return window(lots, 0, limit)
}

func compareLotsByExpiry(left rewards.PointLot, right rewards.PointLot) int {
	if order := left.ExpiresAt.Compare(right.ExpiresAt); order != 0 {
		return order
	}
	return cmp.Compare(left.ID, right.ID)
}

func (store *Store) UpdatePointLot(_ context.Context, lotID rewards.PointLotID, from rewards.LotStatus, remaining rewards.Points, to rewards.LotStatus) error {
	defer store.guard()()
	lot, exists := store.data.lots[lotID]
	if !exists {
		return wrapStoreError(errorSubjectPointLot, errorCodeUpdate, rewards.ErrPointLotNotFound)
	}
	if lot.Status != from {
		return wrapStoreError(errorSubjectPointLot, errorCodeUpdate, rewards.ErrStaleVersion)
	}
	if remaining < 0 || remaining > lot.InitialAmount {
		return wrapStoreError(errorSubjectPointLot, errorCodeInvalid, rewards.ErrInvalidAmount)
	}
	lot.RemainingAmount = remaining
	lot.Status = to
	store.data.lots[lotID] = lot
	return nil
}

func (store *Store) InsertPointHistory(_ context.Context, history rewards.PointHistory) error {
	defer store.guard()()
	history.ID = store.data.nextID()
	store.data.histories = append(store.data.histories, history)
	return nil
}

func (store *Store) ListPointHistory(_ context.Context, userID rewards.UserID, limit int) ([]rewards.PointHistory, error) {
	defer store.guard()()
	histories := make([]rewards.PointHistory, 0)
	for index := len(store.data.histories) - 1; index >= 0; index-- {
		if store.data.histories[index].UserID == userID {
			histories = append(histories, store.data.histories[index])
		}
	}
	return window(histories, 0, limit), nil
}

func (store *Store) FindParticipation(_ context.Context, userID rewards.UserID, date rewards.Date) (rewards.Participation, bool, error) {
	defer store.guard()()
	for _, participation := range store.data.participations {
		if participation.UserID == userID && participation.Date == date {
			return participation, true, nil
		}
	}
	return rewards.Participation{}, false, nil
}

func (store *Store) GetParticipation(_ context.Context, participationID rewards.ParticipationID) (rewards.Participation, error) {
	defer store.guard()()
	participation, exists := store.data.participations[participationID]
	if !exists {
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeGet, rewards.ErrParticipationNotFound)
	}
	return participation, nil
}

func (store *Store) LastParticipation(_ context.Context, userID rewards.UserID) (rewards.Participation, bool, error) {
	defer store.guard()()
	var (
		last  rewards.Participation
		found bool
	)
	for _, participation := range store.data.participations {
		if participation.UserID != userID {
			continue
		}
		if !found || participation.Date.After(last.Date) || (participation.Date == last.Date && participation.ID > last.ID) {
			last = participation
			found = true
		}
	}
	return last, found, nil
}

func (store *Store) InsertParticipation(_ context.Context, participation rewards.Participation) (rewards.Participation, error) {
	defer store.guard()()
	for _, existing := range store.data.participations {
		if existing.UserID == participation.UserID && existing.Date == participation.Date {
			return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeDuplicate, rewards.ErrAlreadyParticipated)
		}
	}
	participation.ID = rewards.ParticipationID(store.data.nextID())
	store.data.participations[participation.ID] = participation
	return participation, nil
}

func (store *Store) UpdateParticipationStatus(_ context.Context, participationID rewards.ParticipationID, from rewards.ParticipationState, to rewards.ParticipationState) error {
	defer store.guard()()
	participation, exists := store.data.participations[participationID]
	if !exists {
		return wrapStoreError(errorSubjectParticipation, errorCodeUpdateStatus, rewards.ErrParticipationNotFound)
	}
	if participation.Status != from {
		return wrapStoreError(errorSubjectParticipation, errorCodeUpdateStatus, rewards.ErrStaleVersion)
	}
	participation.Status = to
	store.data.participations[participationID] = participation
	return nil
}

func (store *Store) GetProduct(_ context.Context, productID rewards.ProductID) (rewards.Product, error) {
	defer store.guard()()
	product, exists := store.data.products[productID]
	if !exists {
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, rewards.ErrProductNotFound)
	}
	return product, nil
}

func (store *Store) AdjustProductStock(_ context.Context, productID rewards.ProductID, delta int64) error {
	defer store.guard()()
	product, exists := store.data.products[productID]
	if !exists {
		return wrapStoreError(errorSubjectProduct, errorCodeAdjustStock, rewards.ErrProductNotFound)
	}
	if product.Stock+delta < 0 {
		return wrapStoreError(errorSubjectProduct, errorCodeAdjustStock, rewards.InsufficientStockError{
			ProductID: productID,
			Requested: -delta,
			Available: product.Stock,
		})
	}
	product.Stock += delta
	store.data.products[productID] = product
	return nil
}

func (store *Store) InsertOrder(_ context.Context, order rewards.Order) (rewards.Order, error) {
	defer store.guard()()
	order.ID = rewards.OrderID(store.data.nextID())
	store.data.orders[order.ID] = order
	return order, nil
}

func (store *Store) GetOrder(_ context.Context, orderID rewards.OrderID) (rewards.Order, error) {
	defer store.guard()()
	order, exists := store.data.orders[orderID]
	if !exists {
		return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeGet, rewards.ErrOrderNotFound)
	}
	return order, nil
}

func (store *Store) UpdateOrderStatus(_ context.Context, orderID rewards.OrderID, from rewards.OrderStatus, to rewards.OrderStatus) error {
	defer store.guard()()
	order, exists := store.data.orders[orderID]
	if !exists {
		return wrapStoreError(errorSubjectOrder, errorCodeUpdateStatus, rewards.ErrOrderNotFound)
	}
	if order.Status != from {
		return wrapStoreError(errorSubjectOrder, errorCodeUpdateStatus, rewards.ErrStaleVersion)
	}
	order.Status = to
	store.data.orders[orderID] = order
	return nil
}

func window[T any](items []T, offset int, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func wrapStoreError(subject string, code string, err error) error {
	return rewards.WrapError(errorOperationStore, subject, code, err)
}
