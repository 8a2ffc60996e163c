package pgstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name          string
		err           error
		wantConflict  bool
		wantTransient bool
	}{
		{name: "nil", err: nil},
		{name: "plain", err: errors.New("boom")},
		{
			name:         "participation unique violation",
			err:          wrapStoreError(errorSubjectParticipation, errorCodeInsert, &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintParticipationUserDate}),
			wantConflict: true,
		},
		{
			name: "other unique violation",
			err:  &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintUsersNickname},
		},
		{
			name:          "serialization failure",
			err:           fmt.Errorf("commit: %w", &pgconn.PgError{Code: pgSerializationFailureCode}),
			wantTransient: true,
		},
		{
			name:          "deadlock",
			err:           wrapStoreError(errorSubjectUser, errorCodeLock, &pgconn.PgError{Code: pgDeadlockDetectedCode}),
			wantTransient: true,
		},
	}
	for _, testCase := range testCases {
		if got := isUniqueViolation(testCase.err, constraintParticipationUserDate); got != testCase.wantConflict {
			test.Fatalf("%s: conflict expected %v, got %v", testCase.name, testCase.wantConflict, got)
		}
		if got := isTransientFailure(testCase.err); got != testCase.wantTransient {
			test.Fatalf("%s: transient expected %v, got %v", testCase.name, testCase.wantTransient, got)
		}
	}
}

func TestNicknameViolationIsNamed(test *testing.T) {
	test.Parallel()
	nicknameErr := &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintUsersNickname}
	if !isUniqueViolation(nicknameErr, constraintUsersNickname) {
		test.Fatalf("expected nickname violation")
	}
	if isUniqueViolation(nicknameErr, constraintParticipationUserDate) {
		test.Fatalf("nickname violation must not read as a duplicate participation")
	}
}

type fakeRow struct {
	values []any
}

func (row fakeRow) Scan(dest ...any) error {
	if len(dest) != len(row.values) {
		return fmt.Errorf("expected %d destinations, got %d", len(row.values), len(dest))
	}
	for index, value := range row.values {
		switch target := dest[index].(type) {
		case *int64:
			*target = value.(int64)
		case *string:
			*target = value.(string)
		case *bool:
			*target = value.(bool)
		case *time.Time:
			*target = value.(time.Time)
		default:
			return fmt.Errorf("unsupported destination %T", target)
		}
	}
	return nil
}

func TestScanRejectsCorruptRows(test *testing.T) {
	test.Parallel()
	midnight := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	if _, err := scanBudget(fakeRow{values: []any{int64(1), midnight, int64(100), int64(200), int64(0)}}); !errors.Is(err, rewards.ErrInvalidBudgetState) {
		test.Fatalf("expected ErrInvalidBudgetState, got %v", err)
	}
	budget, err := scanBudget(fakeRow{values: []any{int64(1), midnight, int64(500), int64(200), int64(3)}})
	if err != nil {
		test.Fatalf("scan budget: %v", err)
	}
	if budget.Date != rewards.NewDate(2025, time.March, 1) || budget.RemainingAmount != 200 || budget.Version != 3 {
		test.Fatalf("unexpected budget %+v", budget)
	}
	lotRow := fakeRow{values: []any{int64(9), int64(2), int64(400), int64(400), midnight, midnight, "BONUS", int64(1), "ACTIVE"}}
	if _, err := scanPointLot(lotRow); !errors.Is(err, rewards.ErrInvalidStatus) {
		test.Fatalf("expected ErrInvalidStatus for an unknown source, got %v", err)
	}
	if _, err := scanUser(fakeRow{values: []any{int64(3), "eve", int64(-5)}}); !errors.Is(err, rewards.ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount for a negative balance, got %v", err)
	}
}
