package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// DailyBudget mirrors the daily_budgets table.
type DailyBudget struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	BudgetDate      time.Time `gorm:"type:date;not null;uniqueIndex:uniq_daily_budgets_date"`
	TotalAmount     int64     `gorm:"not null"`
	RemainingAmount int64     `gorm:"not null"`
	Version         int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (DailyBudget) TableName() string { return "daily_budgets" }

// User mirrors the users table.
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Nickname     string    `gorm:"not null;uniqueIndex:uniq_users_nickname"`
	CurrentPoint int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// PointLot mirrors the point_lots table.
type PointLot struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	UserID          int64     `gorm:"not null;index:idx_point_lots_user_status_expiry,priority:1"`
	InitialAmount   int64     `gorm:"not null"`
	RemainingAmount int64     `gorm:"not null"`
	EarnedAt        time.Time `gorm:"not null"`
	ExpiresAt       time.Time `gorm:"not null;index:idx_point_lots_user_status_expiry,priority:3;index:idx_point_lots_status_expiry,priority:2"`
	SourceType      string    `gorm:"type:varchar(16);not null;index:idx_point_lots_source,priority:1"`
	SourceID        int64     `gorm:"not null;index:idx_point_lots_source,priority:2"`
	Status          string    `gorm:"type:varchar(16);not null;index:idx_point_lots_user_status_expiry,priority:2;index:idx_point_lots_status_expiry,priority:1"`
}

func (PointLot) TableName() string { return "point_lots" }

// PointHistory mirrors the point_histories table.
type PointHistory struct {
	ID              int64          `gorm:"primaryKey;autoIncrement"`
	UserID          int64          `gorm:"not null;index:idx_point_histories_user_created,priority:1"`
	LotID           *int64         `gorm:""`
	Amount          int64          `gorm:"not null"`
	TransactionType string         `gorm:"type:varchar(16);not null"`
	ReferenceType   string         `gorm:"type:varchar(16);not null"`
	ReferenceID     int64          `gorm:"not null"`
	BalanceAfter    int64          `gorm:"not null"`
	Metadata        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt       time.Time      `gorm:"not null;index:idx_point_histories_user_created,priority:2"`
}

func (PointHistory) TableName() string { return "point_histories" }

// RewardParticipation mirrors the reward_participations table.
type RewardParticipation struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	UserID           int64     `gorm:"not null;uniqueIndex:uniq_participation_user_date,priority:1"`
	ParticipatedDate time.Time `gorm:"type:date;not null;uniqueIndex:uniq_participation_user_date,priority:2"`
	WonAmount        int64     `gorm:"not null"`
	DailyBudgetID    int64     `gorm:"not null"`
	Status           string    `gorm:"type:varchar(16);not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (RewardParticipation) TableName() string { return "reward_participations" }

// Product mirrors the products table.
type Product struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"not null"`
	Price     int64     `gorm:"not null"`
	Stock     int64     `gorm:"not null"`
	Active    bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Order mirrors the orders table.
type Order struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	UserID      int64     `gorm:"not null;index:idx_orders_user"`
	ProductID   int64     `gorm:"not null"`
	ProductName string    `gorm:"not null"`
	UnitPrice   int64     `gorm:"not null"`
	Quantity    int64     `gorm:"not null"`
	TotalPrice  int64     `gorm:"not null"`
	Status      string    `gorm:"type:varchar(16);not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&DailyBudget{},
		&User{},
		&PointLot{},
		&PointHistory{},
		&RewardParticipation{},
		&Product{},
		&Order{},
	}
}
