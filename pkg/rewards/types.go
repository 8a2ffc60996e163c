package rewards

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Points is a non-negative integer amount of reward points.
type Points int64

// NewPoints validates a point amount and ensures it is not negative.
func NewPoints(raw int64) (Points, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Points(raw), nil
}

// NewPositivePoints validates a point amount and ensures it is strictly positive.
func NewPositivePoints(raw int64) (Points, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Points(raw), nil
}

// Int64 exposes the raw amount.
func (points Points) Int64() int64 {
	return int64(points)
}

// UserID identifies a program member.
type UserID int64

// ProductID identifies a catalog product.
type ProductID int64

// OrderID identifies a purchase order.
type OrderID int64

// ParticipationID identifies a reward participation record.
type ParticipationID int64

// PointLotID identifies a point lot.
type PointLotID int64

// NewUserID validates a user id.
func NewUserID(raw int64) (UserID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidUserID)
	}
	return UserID(raw), nil
}

// NewProductID validates a product id.
func NewProductID(raw int64) (ProductID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidProductID)
	}
	return ProductID(raw), nil
}

// NewOrderID validates an order id.
func NewOrderID(raw int64) (OrderID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidOrderID)
	}
	return OrderID(raw), nil
}

// NewParticipationID validates a participation id.
func NewParticipationID(raw int64) (ParticipationID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidParticipationID)
	}
	return ParticipationID(raw), nil
}

func (id UserID) Int64() int64          { return int64(id) }
func (id ProductID) Int64() int64       { return int64(id) }
func (id OrderID) Int64() int64         { return int64(id) }
func (id ParticipationID) Int64() int64 { return int64(id) }
func (id PointLotID) Int64() int64      { return int64(id) }

// Date is a calendar day without a time zone. The zero value is invalid.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate normalizes the provided components (e.g. Jan 32 becomes Feb 1).
func NewDate(year int, month time.Month, day int) Date {
	normalized := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{year: normalized.Year(), month: normalized.Month(), day: normalized.Day()}
}

// DateOf returns the calendar day of instant in location.
func DateOf(instant time.Time, location *time.Location) Date {
	local := instant.In(location)
	return Date{year: local.Year(), month: local.Month(), day: local.Day()}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return DateOf(parsed, time.UTC), nil
}

// IsZero reports whether the date is unset.
func (date Date) IsZero() bool {
	return date == Date{}
}

// String formats the date as YYYY-MM-DD.
func (date Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", date.year, int(date.month), date.day)
}

// Time returns midnight of the date in location.
func (date Date) Time(location *time.Location) time.Time {
	return time.Date(date.year, date.month, date.day, 0, 0, 0, 0, location)
}

// AddDays shifts the date by days.
func (date Date) AddDays(days int) Date {
	return NewDate(date.year, date.month, date.day+days)
}

// Before reports whether date is strictly earlier than other.
func (date Date) Before(other Date) bool {
	return date.Time(time.UTC).Before(other.Time(time.UTC))
}

// After reports whether date is strictly later than other.
func (date Date) After(other Date) bool {
	return date.Time(time.UTC).After(other.Time(time.UTC))
}

// DaysUntil returns the number of days from date to other.
func (date Date) DaysUntil(other Date) int {
	return int(other.Time(time.UTC).Sub(date.Time(time.UTC)).Hours() / 24)
}

// MarshalJSON renders the date as a YYYY-MM-DD string.
func (date Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(date.String())
}

// MetadataJSON stores an arbitrary JSON object attached to a history row.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = defaultMetadataJSON
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return defaultMetadataJSON
	}
	return metadata.value
}

func metadataOf(fields map[string]any) MetadataJSON {
	raw, err := json.Marshal(fields)
	if err != nil {
		return MetadataJSON{value: defaultMetadataJSON}
	}
	return MetadataJSON{value: string(raw)}
}

// LotStatus defines the point lot lifecycle.
type LotStatus string

const (
	LotStatusActive    LotStatus = "ACTIVE"
	LotStatusUsed      LotStatus = "USED"
	LotStatusExpired   LotStatus = "EXPIRED"
	LotStatusCancelled LotStatus = "CANCELLED"
)

// ParseLotStatus validates a stored lot status.
func ParseLotStatus(raw string) (LotStatus, error) {
	switch status := LotStatus(strings.TrimSpace(raw)); status {
	case LotStatusActive, LotStatusUsed, LotStatusExpired, LotStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func (status LotStatus) String() string { return string(status) }

// LotSource records why a lot was minted.
type LotSource string

const (
	LotSourceReward LotSource = "REWARD"
	LotSourceRefund LotSource = "REFUND"
)

// ParseLotSource validates a stored lot source.
func ParseLotSource(raw string) (LotSource, error) {
	switch source := LotSource(strings.TrimSpace(raw)); source {
	case LotSourceReward, LotSourceRefund:
		return source, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func (source LotSource) String() string { return string(source) }

// TransactionType enumerates point history kinds.
type TransactionType string

const (
	TransactionEarn   TransactionType = "EARN"
	TransactionUse    TransactionType = "USE"
	TransactionRefund TransactionType = "REFUND"
	TransactionCancel TransactionType = "CANCEL"
	TransactionExpire TransactionType = "EXPIRE"
)

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch transactionType := TransactionType(strings.TrimSpace(raw)); transactionType {
	case TransactionEarn, TransactionUse, TransactionRefund, TransactionCancel, TransactionExpire:
		return transactionType, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func (transactionType TransactionType) String() string { return string(transactionType) }

// ReferenceType names the aggregate a history row points at.
type ReferenceType string

const (
	ReferenceRoulette ReferenceType = "ROULETTE"
	ReferenceOrder    ReferenceType = "ORDER"
	ReferenceExpiry   ReferenceType = "EXPIRY"
)

func (referenceType ReferenceType) String() string { return string(referenceType) }

// ParticipationState is the per-day participation outcome.
type ParticipationState string

const (
	ParticipationSuccess   ParticipationState = "SUCCESS"
	ParticipationCancelled ParticipationState = "CANCELLED"
)

// ParseParticipationState validates a stored participation state.
func ParseParticipationState(raw string) (ParticipationState, error) {
	switch state := ParticipationState(strings.TrimSpace(raw)); state {
	case ParticipationSuccess, ParticipationCancelled:
		return state, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func (state ParticipationState) String() string { return string(state) }

// OrderStatus defines the order lifecycle.
type OrderStatus string

const (
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// ParseOrderStatus validates a stored order status.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch status := OrderStatus(strings.TrimSpace(raw)); status {
	case OrderCompleted, OrderCancelled:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func (status OrderStatus) String() string { return string(status) }

// DailyBudget is the shared reward capacity of one calendar day.
type DailyBudget struct {
	ID              int64
	Date            Date
	TotalAmount     Points
	RemainingAmount Points
	Version         int64
}

// User carries the cached point balance of a member.
type User struct {
	ID           UserID
	Nickname     string
	CurrentPoint Points
}

// PointLot is a discrete, expiring grant of points.
type PointLot struct {
	ID              PointLotID
	UserID          UserID
	InitialAmount   Points
	RemainingAmount Points
	EarnedAt        time.Time
	ExpiresAt       time.Time
	SourceType      LotSource
	SourceID        int64
	Status          LotStatus
}

// PointHistory is one append-only ledger event.
type PointHistory struct {
	ID            int64
	UserID        UserID
	LotID         *PointLotID
	Amount        Points
	Type          TransactionType
	ReferenceType ReferenceType
	ReferenceID   int64
	BalanceAfter  Points
	Metadata      MetadataJSON
	CreatedAt     time.Time
}

// Participation is a user's reward draw for one day.
type Participation struct {
	ID            ParticipationID
	UserID        UserID
	Date          Date
	WonAmount     Points
	DailyBudgetID int64
	Status        ParticipationState
	CreatedAt     time.Time
}

// Product is the subset of a catalog item the core reads.
type Product struct {
	ID     ProductID
	Name   string
	Price  Points
	Stock  int64
	Active bool
}

// Order is a completed or cancelled purchase. Name and price are copied from
// the product at purchase time.
type Order struct {
	ID          OrderID
	UserID      UserID
	ProductID   ProductID
	ProductName string
	UnitPrice   Points
	Quantity    int64
	TotalPrice  Points
	Status      OrderStatus
	CreatedAt   time.Time
}

// LapsedLotFilter selects ACTIVE lots whose expiry has passed.
type LapsedLotFilter struct {
	UserID UserID
	At     time.Time
	Limit  int
}

// BudgetSnapshot is a read view of a daily budget.
type BudgetSnapshot struct {
	Date            Date
	TotalAmount     Points
	RemainingAmount Points
	UsedAmount      Points
}

// ParticipationResult is returned by a successful draw.
type ParticipationResult struct {
	ParticipationID ParticipationID
	WonAmount       Points
	RemainingBudget Points
}

// ParticipationSnapshot is a participation after a state change, with the
// day's remaining budget.
type ParticipationSnapshot struct {
	Participation
	RemainingBudget Points
}

// OrderSnapshot is an order after a state change, with the buyer's cached
// balance once the change committed.
type OrderSnapshot struct {
	Order
	BalanceAfter Points
}

// ParticipationStatus is the read-only view of a user's day.
type ParticipationStatus struct {
	HasParticipated   bool
	RemainingBudget   Points
	LastParticipation *Participation
}

// PointBalance summarizes a user's points.
type PointBalance struct {
	CurrentPoint        Points
	SpendablePoint      Points
	ExpiringWithin7Days Points
	Lots                []PointLot
}

// ExpirySummary reports an expiry sweep.
type ExpirySummary struct {
	ExpiredLots   int
	ExpiredPoints Points
}

// PageRequest selects a 0-based page.
type PageRequest struct {
	Number int
	Size   int
}

// NewPageRequest validates paging input, applying the default size when zero.
func NewPageRequest(number int, size int) (PageRequest, error) {
	if number < 0 {
		return PageRequest{}, fmt.Errorf("%w: page number must not be negative", ErrInvalidPage)
	}
	if size == 0 {
		size = defaultPageSize
	}
	if size < 0 || size > maxPageSize {
		return PageRequest{}, fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidPage, maxPageSize)
	}
	return PageRequest{Number: number, Size: size}, nil
}

// Offset returns the number of rows to skip.
func (request PageRequest) Offset() int {
	return request.Number * request.Size
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Items      []T
	Number     int
	Size       int
	TotalItems int64
	TotalPages int
}

func newPage[T any](items []T, request PageRequest, totalItems int64) Page[T] {
	totalPages := 0
	if request.Size > 0 {
		totalPages = int((totalItems + int64(request.Size) - 1) / int64(request.Size))
	}
	return Page[T]{
		Items:      items,
		Number:     request.Number,
		Size:       request.Size,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}
