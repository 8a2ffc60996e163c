package rewards

import (
	"errors"
	"fmt"
	"testing"
)

const (
	operationName    = "store"
	subjectName      = "budget"
	codeName         = "compare_and_set"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
	var operationError OperationError
	if !errors.As(wrappedError, &operationError) || operationError.Code() != codeName {
		test.Fatalf("expected OperationError with code %q, got %v", codeName, wrappedError)
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestKindOf(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "wrapped not found", err: WrapError("store", "user", "get", ErrUserNotFound), want: KindNotFound},
		{name: "validation", err: fmt.Errorf("%w: bad", ErrInvalidQuantity), want: KindValidation},
		{name: "budget exhausted", err: BudgetExhaustedError{Requested: 10, Remaining: 1}, want: KindBudgetExhausted},
		{name: "insufficient point", err: InsufficientPointError{Required: 10}, want: KindInsufficientPoint},
		{name: "insufficient stock", err: WrapError("store", "product", "adjust_stock", InsufficientStockError{Requested: 2}), want: KindInsufficientStock},
		{name: "already used", err: AlreadyUsedError{LotID: 1}, want: KindAlreadyUsed},
		{name: "already participated", err: ErrAlreadyParticipated, want: KindAlreadyParticipated},
		{name: "already cancelled", err: ErrAlreadyCancelled, want: KindAlreadyCancelled},
		{name: "nickname taken", err: WrapError("store", "user", "duplicate", ErrNicknameTaken), want: KindNicknameTaken},
		{name: "product unavailable", err: ErrProductUnavailable, want: KindProductUnavailable},
		{name: "stale version", err: ErrStaleVersion, want: KindTransientConflict},
		{name: "transient conflict", err: fmt.Errorf("%w: exhausted", ErrTransientConflict), want: KindTransientConflict},
		{name: "internal", err: errors.New("disk on fire"), want: KindInternal},
	}
	for _, testCase := range testCases {
		if got := KindOf(testCase.err); got != testCase.want {
			test.Fatalf("%s: expected %s, got %s", testCase.name, testCase.want, got)
		}
	}
}
