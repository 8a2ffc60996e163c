package rewards_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
)

// conflictStore loses the first staleWrites budget compare-and-set calls to
// an imaginary concurrent writer.
type conflictStore struct {
	rewards.Store
	staleWrites *atomic.Int64
	attempts    *atomic.Int64
}

func newConflictStore(base rewards.Store, staleWrites int64) *conflictStore {
	store := &conflictStore{Store: base, staleWrites: &atomic.Int64{}, attempts: &atomic.Int64{}}
	store.staleWrites.Store(staleWrites)
	return store
}

func (store *conflictStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	store.attempts.Add(1)
	return store.Store.WithTx(ctx, func(ctx context.Context, txStore rewards.Store) error {
		return fn(ctx, &conflictStore{Store: txStore, staleWrites: store.staleWrites, attempts: store.attempts})
	})
}

func (store *conflictStore) CompareAndSetBudgetRemaining(ctx context.Context, budgetID int64, expectedVersion int64, remaining rewards.Points) error {
	if store.staleWrites.Add(-1) >= 0 {
		return rewards.ErrStaleVersion
	}
	return store.Store.CompareAndSetBudgetRemaining(ctx, budgetID, expectedVersion, remaining)
}

func newConflictService(test *testing.T, staleWrites int64, attempts int) (*rewards.Service, *conflictStore, *memstore.Store) {
	test.Helper()
	base := memstore.New()
	store := newConflictStore(base, staleWrites)
	clock := newTestClock(programStart)
	service, err := rewards.NewService(store, clock.Now,
		rewards.WithDefaultDailyCap(5000),
		rewards.WithRewardDrawer(newSequenceDrawer(400)),
		rewards.WithRetryPolicy(rewards.RetryPolicy{Attempts: attempts, BaseDelay: time.Millisecond}),
	)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service, store, base
}

func TestParticipateRetriesStaleBudgetWrites(test *testing.T) {
	test.Parallel()
	service, store, base := newConflictService(test, 2, 5)
	user, err := base.CreateUser(context.Background(), "patient")
	if err != nil {
		test.Fatalf("create user: %v", err)
	}

	result, err := service.Participate(context.Background(), user.ID, service.Today())
	if err != nil {
		test.Fatalf("participate: %v", err)
	}
	if got := store.attempts.Load(); got != 3 {
		test.Fatalf("expected 3 transaction attempts, got %d", got)
	}
	if result.WonAmount != 400 || result.RemainingBudget != 4600 {
		test.Fatalf("unexpected result: %+v", result)
	}
	budget, err := base.GetBudget(context.Background(), service.Today())
	if err != nil {
		test.Fatalf("get budget: %v", err)
	}
	if budget.RemainingAmount != 4600 {
		test.Fatalf("expected a single debit, got remaining %d", budget.RemainingAmount)
	}
	if lots, err := base.ListActivePointLots(context.Background(), user.ID, programStart); err != nil || len(lots) != 1 {
		test.Fatalf("expected one lot, got %d (%v)", len(lots), err)
	}
}

func TestParticipateReportsTransientConflictWhenRetriesRunOut(test *testing.T) {
	test.Parallel()
	service, store, base := newConflictService(test, 100, 3)
	user, err := base.CreateUser(context.Background(), "unlucky")
	if err != nil {
		test.Fatalf("create user: %v", err)
	}

	_, err = service.Participate(context.Background(), user.ID, service.Today())
	if !errors.Is(err, rewards.ErrTransientConflict) {
		test.Fatalf("expected ErrTransientConflict, got %v", err)
	}
	if rewards.KindOf(err) != rewards.KindTransientConflict {
		test.Fatalf("expected transient_conflict kind, got %s", rewards.KindOf(err))
	}
	if got := store.attempts.Load(); got != 3 {
		test.Fatalf("expected 3 transaction attempts, got %d", got)
	}
	_, participated, err := base.FindParticipation(context.Background(), user.ID, service.Today())
	if err != nil {
		test.Fatalf("find participation: %v", err)
	}
	if participated {
		test.Fatalf("expected no participation after conflict")
	}
	if user, err := base.GetUser(context.Background(), user.ID); err != nil || user.CurrentPoint != 0 {
		test.Fatalf("expected no points, got %+v (%v)", user, err)
	}
}
