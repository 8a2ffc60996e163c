package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintParticipationUserDate = "uniq_participation_user_date"
	constraintUsersNickname         = "uniq_users_nickname"
	defaultMetadataJSON             = "{}"
	pgUniqueViolationCode           = "23505"
	pgSerializationFailureCode      = "40001"
	pgDeadlockDetectedCode          = "40P01"
	sqliteBusyCode                  = 5
	sqliteLockedCode                = 6
	sqliteConstraintUniqueCode      = 2067
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
)

// Store implements rewards.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Serialization failures and busy
// databases surface as rewards.ErrStaleVersion so the caller can re-run fn.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	if isTransientFailure(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeConflict, fmt.Errorf("%w: %v", rewards.ErrStaleVersion, err))
	}
	return err
}

// CreateUser registers a member with a zero balance.
func (store *Store) CreateUser(ctx context.Context, nickname string) (rewards.User, error) {
	model := User{Nickname: nickname}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintUsersNickname) {
		return rewards.User{}, wrapStoreError(errorSubjectUser, errorCodeDuplicate, fmt.Errorf("%w: %q", rewards.ErrNicknameTaken, nickname))
	}
	if err != nil {
		return rewards.User{}, wrapStoreError(errorSubjectUser, errorCodeCreate, err)
	}
	return mapUser(model)
}

// CreateProduct registers a catalog product.
func (store *Store) CreateProduct(ctx context.Context, product rewards.Product) (rewards.Product, error) {
	if product.Price < 0 || product.Stock < 0 {
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeCreate, fmt.Errorf("%w: price and stock must not be negative", rewards.ErrInvalidAmount))
	}
	model := Product{
		Name:   product.Name,
		Price:  product.Price.Int64(),
		Stock:  product.Stock,
		Active: product.Active,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeCreate, err)
	}
	return mapProduct(model)
}

func (store *Store) InsertBudgetIfAbsent(ctx context.Context, date rewards.Date, dailyCap rewards.Points) (bool, error) {
	model := DailyBudget{
		BudgetDate:      dateValue(date),
		TotalAmount:     dailyCap.Int64(),
		RemainingAmount: dailyCap.Int64(),
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "budget_date"}}, DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectBudget, errorCodeInsert, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) GetBudget(ctx context.Context, date rewards.Date) (rewards.DailyBudget, error) {
	var model DailyBudget
	err := store.db.WithContext(ctx).
		Where("budget_date = ?", dateValue(date)).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rewards.DailyBudget{}, wrapStoreError(errorSubjectBudget, errorCodeGet, rewards.ErrBudgetNotFound)
		}
		return rewards.DailyBudget{}, wrapStoreError(errorSubjectBudget, errorCodeGet, err)
	}
	budget, err := mapBudget(model)
	if err != nil {
		return rewards.DailyBudget{}, wrapStoreError(errorSubjectBudget, errorCodeInvalid, err)
	}
	return budget, nil
}

func (store *Store) ListBudgets(ctx context.Context, start rewards.Date, end rewards.Date, offset int, limit int) ([]rewards.DailyBudget, error) {
	var rows []DailyBudget
	err := store.db.WithContext(ctx).
		Where("budget_date >= ? AND budget_date <= ?", dateValue(start), dateValue(end)).
		Order("budget_date ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBudget, errorCodeList, err)
	}
	budgets := make([]rewards.DailyBudget, 0, len(rows))
	for _, row := range rows {
		budget, err := mapBudget(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBudget, errorCodeInvalid, err)
		}
		budgets = append(budgets, budget)
	}
	return budgets, nil
}

func (store *Store) CountBudgets(ctx context.Context, start rewards.Date, end rewards.Date) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&DailyBudget{}).
		Where("budget_date >= ? AND budget_date <= ?", dateValue(start), dateValue(end)).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBudget, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) CompareAndSetBudgetRemaining(ctx context.Context, budgetID int64, expectedVersion int64, remaining rewards.Points) error {
	if remaining < 0 {
		return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, rewards.ErrInvalidBudgetState)
	}
	result := store.db.WithContext(ctx).
		Model(&DailyBudget{}).
		Where("id = ? AND version = ? AND total_amount >= ?", budgetID, expectedVersion, remaining.Int64()).
		Updates(map[string]any{
			"remaining_amount": remaining.Int64(),
			"version":          gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBudget, errorCodeCompareAndSet, rewards.ErrStaleVersion)
	}
	return nil
}

func (store *Store) GetUser(ctx context.Context, userID rewards.UserID) (rewards.User, error) {
	return store.getUser(ctx, store.db.WithContext(ctx), userID, errorCodeGet)
}

func (store *Store) LockUser(ctx context.Context, userID rewards.UserID) (rewards.User, error) {
	return store.getUser(ctx, store.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID, errorCodeLock)
}

func (store *Store) getUser(_ context.Context, query *gorm.DB, userID rewards.UserID, code string) (rewards.User, error) {
	var model User
	err := query.Where("id = ?", userID.Int64()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rewards.User{}, wrapStoreError(errorSubjectUser, code, rewards.ErrUserNotFound)
		}
		return rewards.User{}, wrapStoreError(errorSubjectUser, code, err)
	}
	user, err := mapUser(model)
	if err != nil {
		return rewards.User{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return user, nil
}

func (store *Store) UpdateUserPoint(ctx context.Context, userID rewards.UserID, currentPoint rewards.Points) error {
	if currentPoint < 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, rewards.ErrInvalidBalance)
	}
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID.Int64()).
		Update("current_point", currentPoint.Int64())
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdatePoint, rewards.ErrUserNotFound)
	}
	return nil
}

func (store *Store) InsertPointLot(ctx context.Context, lot rewards.PointLot) (rewards.PointLot, error) {
	model := PointLot{
		UserID:          lot.UserID.Int64(),
		InitialAmount:   lot.InitialAmount.Int64(),
		RemainingAmount: lot.RemainingAmount.Int64(),
		EarnedAt:        lot.EarnedAt.UTC(),
		ExpiresAt:       lot.ExpiresAt.UTC(),
		SourceType:      lot.SourceType.String(),
		SourceID:        lot.SourceID,
		Status:          lot.Status.String(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeInsert, err)
	}
	lot.ID = rewards.PointLotID(model.ID)
	return lot, nil
}

func (store *Store) GetPointLot(ctx context.Context, lotID rewards.PointLotID) (rewards.PointLot, error) {
	var model PointLot
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", lotID.Int64()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeGet, rewards.ErrPointLotNotFound)
		}
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeGet, err)
	}
	lot, err := mapPointLot(model)
	if err != nil {
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeInvalid, err)
	}
	return lot, nil
}

func (store *Store) FindPointLotBySource(ctx context.Context, source rewards.LotSource, sourceID int64) (rewards.PointLot, error) {
	var model PointLot
	err := store.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", source.String(), sourceID).
		Order("id ASC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeLookup, rewards.ErrPointLotNotFound)
		}
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeLookup, err)
	}
	lot, err := mapPointLot(model)
	if err != nil {
		return rewards.PointLot{}, wrapStoreError(errorSubjectPointLot, errorCodeInvalid, err)
	}
	return lot, nil
}

func (store *Store) ListActivePointLots(ctx context.Context, userID rewards.UserID, at time.Time) ([]rewards.PointLot, error) {
	var rows []PointLot
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND expires_at > ?", userID.Int64(), rewards.LotStatusActive.String(), at.UTC()).
		Order("expires_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPointLot, errorCodeList, err)
	}
	return mapPointLots(rows)
}

func (store *Store) ListLapsedPointLots(ctx context.Context, filter rewards.LapsedLotFilter) ([]rewards.PointLot, error) {
	query := store.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", rewards.LotStatusActive.String(), filter.At.UTC())
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID.Int64())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []PointLot
	if err := query.Order("expires_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectPointLot, errorCodeList, err)
	}
	return mapPointLots(rows)
}

func (store *Store) UpdatePointLot(ctx context.Context, lotID rewards.PointLotID, from rewards.LotStatus, remaining rewards.Points, to rewards.LotStatus) error {
	if remaining < 0 {
		return wrapStoreError(errorSubjectPointLot, errorCodeInvalid, rewards.ErrInvalidAmount)
	}
	result := store.db.WithContext(ctx).
		Model(&PointLot{}).
		Where("id = ? AND status = ? AND initial_amount >= ?", lotID.Int64(), from.String(), remaining.Int64()).
		Updates(map[string]any{
			"remaining_amount": remaining.Int64(),
			"status":           to.String(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPointLot, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPointLot, errorCodeUpdate, rewards.ErrStaleVersion)
	}
	return nil
}

func (store *Store) InsertPointHistory(ctx context.Context, history rewards.PointHistory) error {
	var lotID *int64
	if history.LotID != nil {
		value := history.LotID.Int64()
		lotID = &value
	}
	model := PointHistory{
		UserID:          history.UserID.Int64(),
		LotID:           lotID,
		Amount:          history.Amount.Int64(),
		TransactionType: history.Type.String(),
		ReferenceType:   history.ReferenceType.String(),
		ReferenceID:     history.ReferenceID,
		BalanceAfter:    history.BalanceAfter.Int64(),
		Metadata:        datatypesJSON(history.Metadata.String()),
		CreatedAt:       history.CreatedAt.UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPointHistory, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListPointHistory(ctx context.Context, userID rewards.UserID, limit int) ([]rewards.PointHistory, error) {
	var rows []PointHistory
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.Int64()).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPointHistory, errorCodeList, err)
	}
	histories := make([]rewards.PointHistory, 0, len(rows))
	for _, row := range rows {
		history, err := mapPointHistory(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPointHistory, errorCodeInvalid, err)
		}
		histories = append(histories, history)
	}
	return histories, nil
}

func (store *Store) FindParticipation(ctx context.Context, userID rewards.UserID, date rewards.Date) (rewards.Participation, bool, error) {
	var model RewardParticipation
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND participated_date = ?", userID.Int64(), dateValue(date)).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rewards.Participation{}, false, nil
	}
	if err != nil {
		return rewards.Participation{}, false, wrapStoreError(errorSubjectParticipation, errorCodeLookup, err)
	}
	participation, err := mapParticipation(model)
	if err != nil {
		return rewards.Participation{}, false, wrapStoreError(errorSubjectParticipation, errorCodeInvalid, err)
	}
	return participation, true, nil
}

func (store *Store) GetParticipation(ctx context.Context, participationID rewards.ParticipationID) (rewards.Participation, error) {
	var model RewardParticipation
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", participationID.Int64()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeGet, rewards.ErrParticipationNotFound)
		}
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeGet, err)
	}
	participation, err := mapParticipation(model)
	if err != nil {
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeInvalid, err)
	}
	return participation, nil
}

func (store *Store) LastParticipation(ctx context.Context, userID rewards.UserID) (rewards.Participation, bool, error) {
	var rows []RewardParticipation
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.Int64()).
		Order("participated_date DESC").
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return rewards.Participation{}, false, wrapStoreError(errorSubjectParticipation, errorCodeLookup, err)
	}
	if len(rows) == 0 {
		return rewards.Participation{}, false, nil
	}
	participation, err := mapParticipation(rows[0])
	if err != nil {
		return rewards.Participation{}, false, wrapStoreError(errorSubjectParticipation, errorCodeInvalid, err)
	}
	return participation, true, nil
}

func (store *Store) InsertParticipation(ctx context.Context, participation rewards.Participation) (rewards.Participation, error) {
	model := RewardParticipation{
		UserID:           participation.UserID.Int64(),
		ParticipatedDate: dateValue(participation.Date),
		WonAmount:        participation.WonAmount.Int64(),
		DailyBudgetID:    participation.DailyBudgetID,
		Status:           participation.Status.String(),
		CreatedAt:        participation.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintParticipationUserDate) {
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeDuplicate, rewards.ErrAlreadyParticipated)
	}
	if err != nil {
		return rewards.Participation{}, wrapStoreError(errorSubjectParticipation, errorCodeInsert, err)
	}
	participation.ID = rewards.ParticipationID(model.ID)
	return participation, nil
}

func (store *Store) UpdateParticipationStatus(ctx context.Context, participationID rewards.ParticipationID, from rewards.ParticipationState, to rewards.ParticipationState) error {
	result := store.db.WithContext(ctx).
		Model(&RewardParticipation{}).
		Where("id = ? AND status = ?", participationID.Int64(), from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectParticipation, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectParticipation, errorCodeUpdateStatus, rewards.ErrStaleVersion)
	}
	return nil
}

func (store *Store) GetProduct(ctx context.Context, productID rewards.ProductID) (rewards.Product, error) {
	var model Product
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID.Int64()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, rewards.ErrProductNotFound)
		}
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, err)
	}
	product, err := mapProduct(model)
	if err != nil {
		return rewards.Product{}, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
	}
	return product, nil
}

func (store *Store) AdjustProductStock(ctx context.Context, productID rewards.ProductID, delta int64) error {
	result := store.db.WithContext(ctx).
		Model(&Product{}).
		Where("id = ? AND stock + ? >= 0", productID.Int64(), delta).
		Update("stock", gorm.Expr("stock + ?", delta))
	if result.Error != nil {
		return wrapStoreError(errorSubjectProduct, errorCodeAdjustStock, result.Error)
	}
	if result.RowsAffected > 0 {
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

func (store *Store) InsertOrder(ctx context.Context, order rewards.Order) (rewards.Order, error) {
	model := Order{
		UserID:      order.UserID.Int64(),
		ProductID:   order.ProductID.Int64(),
		ProductName: order.ProductName,
		UnitPrice:   order.UnitPrice.Int64(),
		Quantity:    order.Quantity,
		TotalPrice:  order.TotalPrice.Int64(),
		Status:      order.Status.String(),
		CreatedAt:   order.CreatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeInsert, err)
	}
	order.ID = rewards.OrderID(model.ID)
	return order, nil
}

func (store *Store) GetOrder(ctx context.Context, orderID rewards.OrderID) (rewards.Order, error) {
	var model Order
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID.Int64()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeGet, rewards.ErrOrderNotFound)
		}
		return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeGet, err)
	}
	order, err := mapOrder(model)
	if err != nil {
		return rewards.Order{}, wrapStoreError(errorSubjectOrder, errorCodeInvalid, err)
	}
	return order, nil
}

func (store *Store) UpdateOrderStatus(ctx context.Context, orderID rewards.OrderID, from rewards.OrderStatus, to rewards.OrderStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND status = ?", orderID.Int64(), from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectOrder, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
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

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

// isUniqueViolation reports a unique-key failure. Translated gorm errors and
// SQLite errors do not name the constraint, so callers only pass inserts into
// a table whose sole secondary unique key is constraint.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintUniqueCode
	}
	return false
}

func isTransientFailure(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}
