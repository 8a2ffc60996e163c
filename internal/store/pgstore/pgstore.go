package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintParticipationUserDate = "uniq_participation_user_date"
	constraintUsersNickname         = "uniq_users_nickname"
	pgUniqueViolationCode           = "23505"
	pgSerializationFailureCode      = "40001"
	pgDeadlockDetectedCode          = "40P01"
	errorOperationStore             = "store"
	errorSubjectBudget              = "budget"
	errorSubjectOrder               = "order"
	errorSubjectParticipation       = "participation"
	errorSubjectPointHistory        = "point_history"
	errorSubjectPointLot            = "point_lot"
	errorSubjectProduct             = "product"
	errorSubjectTransaction         = "transaction"
	errorSubjectUser                = "user"
	errorCodeAdjustStock            = "adjust_stock"
	errorCodeBegin                  = "begin"
	errorCodeCommit                 = "commit"
	errorCodeCompareAndSet          = "compare_and_set"
	errorCodeConflict               = "conflict"
	errorCodeCount                  = "count"
	errorCodeCreate                 = "create"
	errorCodeDuplicate              = "duplicate"
	errorCodeGet                    = "get"
	errorCodeInsert                 = "insert"
	errorCodeInvalid                = "invalid"
	errorCodeList                   = "list"
	errorCodeLock                   = "lock"
	errorCodeLookup                 = "lookup"
	errorCodeUpdate                 = "update"
	errorCodeUpdatePoint            = "update_point"
	errorCodeUpdateStatus           = "update_status"

	sqlInsertBudgetIfAbsent = `
		insert into daily_budgets(budget_date, total_amount, remaining_amount, version, created_at, updated_at)
		values ($1, $2, $2, 0, now(), now())
		on conflict (budget_date) do nothing
	`

	sqlSelectBudget = `
		select id, budget_date, total_amount, remaining_amount, version
		from daily_budgets
		where budget_date = $1
	`

	sqlListBudgets = `
		select id, budget_date, total_amount, remaining_amount, version
		from daily_budgets
		where budget_date >= $1 and budget_date <= $2
		order by budget_date asc
		offset $3 limit $4
	`

	sqlCountBudgets = `
		select count(*) from daily_budgets
		where budget_date >= $1 and budget_date <= $2
	`

	sqlCompareAndSetBudget = `
		update daily_budgets
		set remaining_amount = $3, version = version + 1, updated_at = now()
		where id = $1 and version = $2 and total_amount >= $3
	`

	sqlInsertUser = `
		insert into users(nickname, current_point, created_at, updated_at)
		values ($1, 0, now(), now())
		returning id, nickname, current_point
	`

	sqlSelectUser = `
		select id, nickname, current_point from users where id = $1
	`

	sqlSelectUserForUpdate = `
		select id, nickname, current_point from users where id = $1
		for update
	`

	sqlUpdateUserPoint = `
		update users set current_point = $2, updated_at = now() where id = $1
	`

	sqlInsertPointLot = `
		insert into point_lots(user_id, initial_amount, remaining_amount, earned_at, expires_at, source_type, source_id, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id
	`

	sqlSelectPointLotForUpdate = `
		select id, user_id, initial_amount, remaining_amount, earned_at, expires_at, source_type, source_id, status
		from point_lots
		where id = $1
		for update
	`

	sqlSelectPointLotBySource = `
		select id, user_id, initial_amount, remaining_amount, earned_at, expires_at, source_type, source_id, status
		from point_lots
		where source_type = $1 and source_id = $2
		order by id asc
		limit 1
	`

	sqlListActivePointLots = `
		select id, user_id, initial_amount, remaining_amount, earned_at, expires_at, source_type, source_id, status
		from point_lots
		where user_id = $1 and status = 'ACTIVE' and expires_at > $2
		order by expires_at asc, id asc
	`

	sqlListLapsedPointLots = `
		select id, user_id, initial_amount, remaining_amount, earned_at, expires_at, source_type, source_id, status
		from point_lots
		where status = 'ACTIVE' and expires_at <= $1 and ($2 = 0 or user_id = $2)
		order by expires_at asc, id asc
		limit nullif($3, 0)
	`

	sqlUpdatePointLot = `
		update point_lots
		set remaining_amount = $3, status = $4
		where id = $1 and status = $2 and initial_amount >= $3
	`

	sqlInsertPointHistory = `
		insert into point_histories(user_id, lot_id, amount, transaction_type, reference_type, reference_id, balance_after, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, coalesce(nullif($8, ''), '{}')::jsonb, $9)
	`

	sqlListPointHistory = `
		select id, user_id, lot_id, amount, transaction_type, reference_type, reference_id, balance_after, coalesce(metadata::text, '{}'), created_at
		from point_histories
		where user_id = $1
		order by created_at desc, id desc
		limit $2
	`

	sqlSelectParticipationByDate = `
		select id, user_id, participated_date, won_amount, daily_budget_id, status, created_at
		from reward_participations
		where user_id = $1 and participated_date = $2
	`

	sqlSelectParticipationForUpdate = `
		select id, user_id, participated_date, won_amount, daily_budget_id, status, created_at
		from reward_participations
		where id = $1
		for update
	`

	sqlSelectLastParticipation = `
		select id, user_id, participated_date, won_amount, daily_budget_id, status, created_at
		from reward_participations
		where user_id = $1
		order by participated_date desc, id desc
		limit 1
	`

	sqlInsertParticipation = `
		insert into reward_participations(user_id, participated_date, won_amount, daily_budget_id, status, created_at)
		values ($1, $2, $3, $4, $5, $6)
		returning id
	`

	sqlUpdateParticipationStatus = `
		update reward_participations set status = $3 where id = $1 and status = $2
	`

	sqlInsertProduct = `
		insert into products(name, price, stock, active, created_at)
		values ($1, $2, $3, $4, now())
		returning id
	`

	sqlSelectProductForUpdate = `
		select id, name, price, stock, active from products where id = $1
		for update
	`

	sqlAdjustProductStock = `
		update products set stock = stock + $2 where id = $1 and stock + $2 >= 0
	`

	sqlInsertOrder = `
		insert into orders(user_id, product_id, product_name, unit_price, quantity, total_price, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		returning id
	`

	sqlSelectOrderForUpdate = `
		select id, user_id, product_id, product_name, unit_price, quantity, total_price, status, created_at
		from orders
		where id = $1
		for update
	`

	sqlUpdateOrderStatus = `
		update orders set status = $3, updated_at = now() where id = $1 and status = $2
	`
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// queries holds the statements shared by the pool and transaction stores.
type queries struct {
	db querier
}

// Store implements rewards.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements rewards.Store for an active transaction.
type TxStore struct {
	queries
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// WithTx runs fn in a transaction. Serialization failures and deadlocks are
// reported as rewards.ErrStaleVersion.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		if isTransientFailure(err) {
			return wrapStoreError(errorSubjectTransaction, errorCodeConflict, fmt.Errorf("%w: %v", rewards.ErrStaleVersion, err))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isTransientFailure(err) {
			return wrapStoreError(errorSubjectTransaction, errorCodeConflict, fmt.Errorf("%w: %v", rewards.ErrStaleVersion, err))
		}
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	return fn(ctx, store)
}

// CreateUser registers a member with a zero balance.
func (store *queries) CreateUser(ctx context.Context, nickname string) (rewards.User, error) {
	user, err := scanUser(store.db.QueryRow(ctx, sqlInsertUser, nickname))
	if isUniqueViolation(err, constraintUsersNickname) {
		return rewards.User{}, wrapStoreError(errorSubjectUser, errorCodeDuplicate, fmt.Errorf("%w: %q", rewards.ErrNicknameTaken, nickname))
	}
	if err != nil {
		return rewards.User{}, wrapStoreError(errorSubjectUser, errorCodeCreate, err)
	}
	return user, nil
}

// CreateProduct registers a catalog product.
func (store *queries) CreateProduct(ctx context.Context, product rewards.Product) (rewards.Product, error) {
	if product.Price < 0 || product.Stock < 0 {
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeCreate, fmt.Errorf("%w: price and stock must not be negative", rewards.ErrInvalidAmount))
	}
	var productIDValue int64
	err := store.db.QueryRow(ctx, sqlInsertProduct, product.Name, product.Price.Int64(), product.Stock, product.Active).Scan(&productIDValue)
	if err != nil {
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeCreate, err)
	}
	product.ID = rewards.ProductID(productIDValue)
	return product, nil
}

func (store *queries) InsertBudgetIfAbsent(ctx context.Context, date rewards.Date, dailyCap rewards.Points) (bool, error) {
	tag, err := store.db.Exec(ctx, sqlInsertBudgetIfAbsent, dateValue(date), dailyCap.Int64())
	if err != nil {
		return false, wrapStoreError(errorSubjectBudget, errorCodeInsert, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store *queries) GetBudget(ctx context.Context, date rewards.Date) (rewards.DailyBudget, error) {
	budget, err := scanBudget(store.db.QueryRow(ctx, sqlSelectBudget, dateValue(date)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rewards.DailyBudget{}, wrapStoreError(errorSubjectBudget, errorCodeGet, rewards.ErrBudgetNotFound)
		}
		return rewards.DailyBudget{}, wrapStoreError(errorSubjectBudget, errorCodeGet, err)
	}
	return budget, nil
}

func (store *queries) ListBudgets(ctx context.Context, start rewards.Date, end rewards.Date, offset int, limit int) ([]rewards.DailyBudget, error) {
	rows, err := store.db.Query(ctx, sqlListBudgets, dateValue(start), dateValue(end), offset, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectBudget, errorCodeList, err)
	}
	defer rows.Close()
	budgets := make([]rewards.DailyBudget, 0, limit)
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBudget, errorCodeInvalid, err)
		}
		budgets = append(budgets, budget)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBudget, errorCodeList, err)
	}
	return budgets, nil
}

func (store *queries) CountBudgets(ctx context.Context, start rewards.Date, end rewards.Date) (int64, error) {
	var count int64
	if err := store.db.QueryRow(ctx, sqlCountBudgets, dateValue(start), dateValue(end)).Scan(&count); err != nil {
		return 0, wrapStoreError(errorSubjectBudget, errorCodeCount, err)
	}
	return count, nil
}

func (store *queries) CompareAndSetBudgetRemaining(ctx context.Context, budgetID int64, expectedVersion int64, remaining rewards.Points) error {
	if remaining < 0 {
		return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, rewards.ErrInvalidBudgetState)
	}
	tag, err := store.db.Exec(ctx, sqlCompareAndSetBudget, budgetID, expectedVersion, remaining.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, rewards.ErrStaleVersion)
	}
	return nil
}

func (store *queries) GetUser(ctx context.Context, userID rewards.UserID) (rewards.User, error) {
	return store.selectUser(ctx, sqlSelectUser, userID, errorCodeGet)
}

func (store *queries) LockUser(ctx context.Context, userID rewards.UserID) (rewards.User, error) {
	return store.selectUser(ctx, sqlSelectUserForUpdate, userID, errorCodeLock)
}

func (store *queries) selectUser(ctx context.Context, query string, userID rewards.UserID, code string) (rewards.User, error) {
	user, err := scanUser(store.db.QueryRow(ctx, query, userID.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rewards.User{}, wrapStoreError(errorSubjectUser, code, rewards.ErrUserNotFound)
		}
		return rewards.User{}, wrapStoreError(errorSubjectUser, code, err)
	}
	return user, nil
}

func (store *queries) UpdateUserPoint(ctx context.Context, userID rewards.UserID, currentPoint rewards.Points) error {
	if currentPoint < 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, rewards.ErrInvalidBalance)
	}
	tag, err := store.db.Exec(ctx, sqlUpdateUserPoint, userID.Int64(), currentPoint.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, rewards.ErrUserNotFound)
	}
	return nil
}

func (store *queries) InsertPointLot(ctx context.Context, lot rewards.PointLot) (rewards.PointLot, error) {
	var lotIDValue int64
	err := store.db.QueryRow(ctx, sqlInsertPointLot,
		lot.UserID.Int64(),
		lot.InitialAmount.Int64(),
		lot.RemainingAmount.Int64(),
		lot.EarnedAt.UTC(),
		lot.ExpiresAt.UTC(),
		lot.SourceType.String(),
		lot.SourceID,
		lot.Status.String(),
	).Scan(&lotIDValue)
	if err != nil {
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeInsert, err)
	}
	lot.ID = rewards.PointLotID(lotIDValue)
	return lot, nil
}

func (store *queries) GetPointLot(ctx context.Context, lotID rewards.PointLotID) (rewards.PointLot, error) {
	lot, err := scanPointLot(store.db.QueryRow(ctx, sqlSelectPointLotForUpdate, lotID.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeGet, rewards.ErrPointLotNotFound)
		}
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeGet, err)
	}
	return lot, nil
}

func (store *queries) FindPointLotBySource(ctx context.Context, source rewards.LotSource, sourceID int64) (rewards.PointLot, error) {
	lot, err := scanPointLot(store.db.QueryRow(ctx, sqlSelectPointLotBySource, source.String(), sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeLookup, rewards.ErrPointLotNotFound)
		}
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeLookup, err)
	}
	return lot, nil
}

func (store *queries) ListActivePointLots(ctx context.Context, userID rewards.UserID, at time.Time) ([]rewards.PointLot, error) {
	rows, err := store.db.Query(ctx, sqlListActivePointLots, userID.Int64(), at.UTC())
	if err != nil {
		return nil, wrapStoreError(errorSubjectPointLot, errorCodeList, err)
	}
	return scanPointLots(rows)
}

func (store *queries) ListLapsedPointLots(ctx context.Context, filter rewards.LapsedLotFilter) ([]rewards.PointLot, error) {
	rows, err := store.db.Query(ctx, sqlListLapsedPointLots, filter.At.UTC(), filter.UserID.Int64(), filter.Limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectPointLot, errorCodeList, err)
	}
	return scanPointLots(rows)
}

func (store *queries) UpdatePointLot(ctx context.Context, lotID rewards.PointLotID, from rewards.LotStatus, remaining rewards.Points, to rewards.LotStatus) error {
	if remaining < 0 {
		return wrapStoreError(errorSubjectPointLot, errorCodeInvalid, rewards.ErrInvalidAmount)
	}
	tag, err := store.db.Exec(ctx, sqlUpdatePointLot, lotID.Int64(), from.String(), remaining.Int64(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectPointLot, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectPointLot, errorCodeUpdate, rewards.ErrStaleVersion)
	}
	return nil
}

func (store *queries) InsertPointHistory(ctx context.Context, history rewards.PointHistory) error {
	var lotID *int64
	if history.LotID != nil {
		value := history.LotID.Int64()
		lotID = &value
	}
	createdAt := history.CreatedAt.UTC()
	if history.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := store.db.Exec(ctx, sqlInsertPointHistory,
		history.UserID.Int64(),
		lotID,
		history.Amount.Int64(),
		history.Type.String(),
		history.ReferenceType.String(),
		history.ReferenceID,
		history.BalanceAfter.Int64(),
		history.Metadata.String(),
		createdAt,
	)
	if err != nil {
		return wrapStoreError(errorSubjectPointHistory, errorCodeInsert, err)
	}
	return nil
}

func (store *queries) ListPointHistory(ctx context.Context, userID rewards.UserID, limit int) ([]rewards.PointHistory, error) {
	rows, err := store.db.Query(ctx, sqlListPointHistory, userID.Int64(), limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectPointHistory, errorCodeList, err)
	}
	histories, err := scanPointHistories(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectPointHistory, errorCodeInvalid, err)
	}
	return histories, nil
}

func (store *queries) FindParticipation(ctx context.Context, userID rewards.UserID, date rewards.Date) (rewards.Participation, bool, error) {
	participation, err := scanParticipation(store.db.QueryRow(ctx, sqlSelectParticipationByDate, userID.Int64(), dateValue(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return rewards.Participation{}, false, nil
	}
	if err != nil {
		return rewards.Participation{}, false, wrapStoreError(errorSubjectParticipation, errorCodeLookup, err)
	}
	return participation, true, nil
}

func (store *queries) GetParticipation(ctx context.Context, participationID rewards.ParticipationID) (rewards.Participation, error) {
	participation, err := scanParticipation(store.db.QueryRow(ctx, sqlSelectParticipationForUpdate, participationID.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeGet, rewards.ErrParticipationNotFound)
		}
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeGet, err)
	}
	return participation, nil
}

func (store *queries) LastParticipation(ctx context.Context, userID rewards.UserID) (rewards.Participation, bool, error) {
	participation, err := scanParticipation(store.db.QueryRow(ctx, sqlSelectLastParticipation, userID.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return rewards.Participation{}, false, nil
	}
	if err != nil {
		return rewards.Participation{}, false, wrapStoreError(errorSubjectParticipation, errorCodeLookup, err)
	}
	return participation, true, nil
}

func (store *queries) InsertParticipation(ctx context.Context, participation rewards.Participation) (rewards.Participation, error) {
	var participationIDValue int64
	err := store.db.QueryRow(ctx, sqlInsertParticipation,
		participation.UserID.Int64(),
		dateValue(participation.Date),
		participation.WonAmount.Int64(),
		participation.DailyBudgetID,
		participation.Status.String(),
		participation.CreatedAt.UTC(),
	).Scan(&participationIDValue)
	if isUniqueViolation(err, constraintParticipationUserDate) {
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeDuplicate, rewards.ErrAlreadyParticipated)
	}
	if err != nil {
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeInsert, err)
	}
	participation.ID = rewards.ParticipationID(participationIDValue)
	return participation, nil
}

func (store *queries) UpdateParticipationStatus(ctx context.Context, participationID rewards.ParticipationID, from rewards.ParticipationState, to rewards.ParticipationState) error {
	tag, err := store.db.Exec(ctx, sqlUpdateParticipationStatus, participationID.Int64(), from.String(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectParticipation, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectParticipation, errorCodeUpdateStatus, rewards.ErrStaleVersion)
	}
	return nil
}

func (store *queries) GetProduct(ctx context.Context, productID rewards.ProductID) (rewards.Product, error) {
	product, err := scanProduct(store.db.QueryRow(ctx, sqlSelectProductForUpdate, productID.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, rewards.ErrProductNotFound)
		}
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, err)
	}
	return product, nil
}

func (store *queries) AdjustProductStock(ctx context.Context, productID rewards.ProductID, delta int64) error {
	tag, err := store.db.Exec(ctx, sqlAdjustProductStock, productID.Int64(), delta)
	if err != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeAdjustStock, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	product, err := store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	return wrapStoreError(errorSubjectProduct, errorCodeAdjustStock, rewards.InsufficientStockError{
		ProductID: productID,
		Requested: -delta,
		Available: product.Stock,
	})
}

func (store *queries) InsertOrder(ctx context.Context, order rewards.Order) (rewards.Order, error) {
	var orderIDValue int64
	err := store.db.QueryRow(ctx, sqlInsertOrder,
		order.UserID.Int64(),
		order.ProductID.Int64(),
		order.ProductName,
		order.UnitPrice.Int64(),
		order.Quantity,
		order.TotalPrice.Int64(),
		order.Status.String(),
		order.CreatedAt.UTC(),
	).Scan(&orderIDValue)
	if err != nil {
		return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeInsert, err)
	}
	order.ID = rewards.OrderID(orderIDValue)
	return order, nil
}

func (store *queries) GetOrder(ctx context.Context, orderID rewards.OrderID) (rewards.Order, error) {
	order, err := scanOrder(store.db.QueryRow(ctx, sqlSelectOrderForUpdate, orderID.Int64()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeGet, rewards.ErrOrderNotFound)
		}
		return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeGet, err)
	}
	return order, nil
}

func (store *queries) UpdateOrderStatus(ctx context.Context, orderID rewards.OrderID, from rewards.OrderStatus, to rewards.OrderStatus) error {
	tag, err := store.db.Exec(ctx, sqlUpdateOrderStatus, orderID.Int64(), from.String(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectOrder, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectOrder, errorCodeUpdateStatus, rewards.ErrStaleVersion)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return rewards.WrapError(errorOperationStore, subject, code, err)
}

func dateValue(date rewards.Date) time.Time {
	return date.Time(time.UTC)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

func isTransientFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	return false
}
