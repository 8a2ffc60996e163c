package rewards

import (
	"errors"
	"fmt"
)

// Error kinds shared by every operation.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrAlreadyParticipated = errors.New("already participated today")
	ErrBudgetExhausted     = errors.New("daily budget exhausted")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrProductUnavailable  = errors.New("product unavailable")
	ErrInsufficientPoint   = errors.New("insufficient point")
	ErrAlreadyUsed         = errors.New("points already used")
	ErrAlreadyCancelled    = errors.New("already cancelled")
	ErrNicknameTaken       = errors.New("nickname already taken")
	ErrTransientConflict   = errors.New("transient conflict")
	ErrStaleVersion        = errors.New("stale version")
)

// Internal consistency failures.
var (
	ErrInvalidBudgetState   = errors.New("invalid budget state")
	ErrInvalidBalance       = errors.New("invalid balance")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// Not-found subjects.
var (
	ErrUserNotFound          = fmt.Errorf("user %w", ErrNotFound)
	ErrProductNotFound       = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound         = fmt.Errorf("order %w", ErrNotFound)
	ErrParticipationNotFound = fmt.Errorf("participation %w", ErrNotFound)
	ErrBudgetNotFound        = fmt.Errorf("budget %w", ErrNotFound)
	ErrPointLotNotFound      = fmt.Errorf("point lot %w", ErrNotFound)
)

// Validation failures.
var (
	ErrInvalidAmount          = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidUserID          = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidProductID       = fmt.Errorf("%w: invalid product id", ErrValidation)
	ErrInvalidOrderID         = fmt.Errorf("%w: invalid order id", ErrValidation)
	ErrInvalidParticipationID = fmt.Errorf("%w: invalid participation id", ErrValidation)
	ErrInvalidQuantity        = fmt.Errorf("%w: invalid quantity", ErrValidation)
	ErrInvalidDate            = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidDateRange       = fmt.Errorf("%w: invalid date range", ErrValidation)
	ErrInvalidPage            = fmt.Errorf("%w: invalid page", ErrValidation)
	ErrInvalidStatus          = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidMetadataJSON    = fmt.Errorf("%w: invalid metadata json", ErrValidation)
)

// BudgetExhaustedError reports a debit the day's budget cannot cover.
type BudgetExhaustedError struct {
	Date      Date
	Requested Points
	Remaining Points
}

func (budgetError BudgetExhaustedError) Error() string {
	return fmt.Sprintf("%v: date %s requested %d remaining %d", ErrBudgetExhausted, budgetError.Date, budgetError.Requested, budgetError.Remaining)
}

func (budgetError BudgetExhaustedError) Unwrap() error {
	return ErrBudgetExhausted
}

// InsufficientPointError reports a spend larger than the spendable balance.
type InsufficientPointError struct {
	UserID    UserID
	Required  Points
	Available Points
}

func (pointError InsufficientPointError) Error() string {
	return fmt.Sprintf("%v: user %d required %d available %d", ErrInsufficientPoint, pointError.UserID, pointError.Required, pointError.Available)
}

func (pointError InsufficientPointError) Unwrap() error {
	return ErrInsufficientPoint
}

// InsufficientStockError reports a purchase larger than the stock counter.
type InsufficientStockError struct {
	ProductID ProductID
	Requested int64
	Available int64
}

func (stockError InsufficientStockError) Error() string {
	return fmt.Sprintf("%v: product %d requested %d available %d", ErrInsufficientStock, stockError.ProductID, stockError.Requested, stockError.Available)
}

func (stockError InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// AlreadyUsedError reports a reclaim of a lot that is no longer untouched.
type AlreadyUsedError struct {
	LotID           PointLotID
	Status          LotStatus
	InitialAmount   Points
	RemainingAmount Points
}

func (usedError AlreadyUsedError) Error() string {
	return fmt.Sprintf("%v: lot %d status %s initial %d remaining %d", ErrAlreadyUsed, usedError.LotID, usedError.Status, usedError.InitialAmount, usedError.RemainingAmount)
}

func (usedError AlreadyUsedError) Unwrap() error {
	return ErrAlreadyUsed
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// ErrorKind classifies an error for callers rendering a response.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindValidation          ErrorKind = "validation"
	KindAlreadyParticipated ErrorKind = "already_participated"
	KindBudgetExhausted     ErrorKind = "budget_exhausted"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindProductUnavailable  ErrorKind = "product_unavailable"
	KindInsufficientPoint   ErrorKind = "insufficient_point"
	KindAlreadyUsed         ErrorKind = "already_used"
	KindAlreadyCancelled    ErrorKind = "already_cancelled"
	KindNicknameTaken       ErrorKind = "nickname_taken"
	KindTransientConflict   ErrorKind = "transient_conflict"
	KindInternal            ErrorKind = "internal"
)

var errorKinds = []struct {
	target error
	kind   ErrorKind
}{
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
	{ErrAlreadyParticipated, KindAlreadyParticipated},
	{ErrBudgetExhausted, KindBudgetExhausted},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrProductUnavailable, KindProductUnavailable},
	{ErrInsufficientPoint, KindInsufficientPoint},
	{ErrAlreadyUsed, KindAlreadyUsed},
	{ErrAlreadyCancelled, KindAlreadyCancelled},
	{ErrNicknameTaken, KindNicknameTaken},
	{ErrTransientConflict, KindTransientConflict},
	{ErrStaleVersion, KindTransientConflict},
}

// KindOf returns the kind of err, or KindInternal when it is not a domain error.
func KindOf(err error) ErrorKind {
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.target) {
			return candidate.kind
		}
	}
	return KindInternal
}
