package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
)

func TestWithTxDiscardsWritesOnError(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	store := New()
	date := rewards.NewDate(2025, 3, 1)
	failure := errors.New("boom")

	err := store.WithTx(ctx, func(ctx context.Context, txStore rewards.Store) error {
		if _, err := txStore.InsertBudgetIfAbsent(ctx, date, 1000); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		test.Fatalf("expected fn error, got %v", err)
	}
	if _, err := store.GetBudget(ctx, date); !errors.Is(err, rewards.ErrBudgetNotFound) {
		test.Fatalf("expected rolled back budget, got %v", err)
	}

	if err := store.WithTx(ctx, func(ctx context.Context, txStore rewards.Store) error {
		_, err := txStore.InsertBudgetIfAbsent(ctx, date, 1000)
		return err
	}); err != nil {
		test.Fatalf("commit: %v", err)
	}
	budget, err := store.GetBudget(ctx, date)
	if err != nil || budget.RemainingAmount != 1000 {
		test.Fatalf("expected committed budget, got %+v (%v)", budget, err)
	}
}

func TestGuardedWrites(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	store := New()
	user, _ := store.CreateUser(ctx, "alice")
	product, _ := store.CreateProduct(ctx, rewards.Product{Name: "Coffee", Price: 100, Stock: 1, Active: true})
	date := rewards.NewDate(2025, 3, 1)

	if _, err := store.InsertParticipation(ctx, rewards.Participation{UserID: user.ID, Date: date, WonAmount: 100}); err != nil {
		test.Fatalf("insert participation: %v", err)
	}
	if _, err := store.InsertParticipation(ctx, rewards.Participation{UserID: user.ID, Date: date, WonAmount: 200}); !errors.Is(err, rewards.ErrAlreadyParticipated) {
		test.Fatalf("expected duplicate participation, got %v", err)
	}

	var stockError rewards.InsufficientStockError
	if err := store.AdjustProductStock(ctx, product.ID, -2); !errors.As(err, &stockError) || stockError.Available != 1 {
		test.Fatalf("expected insufficient stock, got %v", err)
	}
	if err := store.AdjustProductStock(ctx, product.ID, -1); err != nil {
		test.Fatalf("adjust stock: %v", err)
	}

	if _, err := store.CreateUser(ctx, "alice"); !errors.Is(err, rewards.ErrNicknameTaken) {
		test.Fatalf("expected nickname taken, got %v", err)
	}
	if _, err := store.CreateProduct(ctx, rewards.Product{Name: "Broken", Price: -1}); !errors.Is(err, rewards.ErrInvalidAmount) {
		test.Fatalf("expected invalid amount, got %v", err)
	}
}
