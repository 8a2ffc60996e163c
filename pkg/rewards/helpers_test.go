package rewards_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
)

const (
	defaultTestDailyCap rewards.Points = 100000
	day                                = 24 * time.Hour
)

var programStart = time.Date(2025, time.March, 1, 3, 0, 0, 0, time.UTC)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{current: start}
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.current
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.current = clock.current.Add(duration)
}

// sequenceDrawer hands out amounts in order and repeats the last one.
type sequenceDrawer struct {
	mu      sync.Mutex
	amounts []rewards.Points
	next    int
}

func newSequenceDrawer(amounts ...rewards.Points) *sequenceDrawer {
	return &sequenceDrawer{amounts: amounts}
}

func (drawer *sequenceDrawer) Draw() (rewards.Points, error) {
	drawer.mu.Lock()
	defer drawer.mu.Unlock()
	index := min(drawer.next, len(drawer.amounts)-1)
	drawer.next++
	return drawer.amounts[index], nil
}

type serviceHarness struct {
	store   *memstore.Store
	clock   *testClock
	service *rewards.Service
}

func newHarness(test *testing.T, options ...rewards.ServiceOption) *serviceHarness {
	test.Helper()
	store := memstore.New()
	clock := newTestClock(programStart)
	defaults := []rewards.ServiceOption{
		rewards.WithDefaultDailyCap(defaultTestDailyCap),
		rewards.WithRetryPolicy(rewards.RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond}),
	}
	service, err := rewards.NewService(store, clock.Now, append(defaults, options...)...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return &serviceHarness{store: store, clock: clock, service: service}
}

func (harness *serviceHarness) mustUser(test *testing.T, nickname string) rewards.User {
	test.Helper()
	user, err := harness.store.CreateUser(context.Background(), nickname)
	if err != nil {
		test.Fatalf("create user: %v", err)
	}
	return user
}

func (harness *serviceHarness) mustProduct(test *testing.T, name string, price rewards.Points, stock int64) rewards.Product {
	test.Helper()
	product, err := harness.store.CreateProduct(context.Background(), rewards.Product{Name: name, Price: price, Stock: stock, Active: true})
	if err != nil {
		test.Fatalf("create product: %v", err)
	}
	return product
}

func (harness *serviceHarness) mustParticipate(test *testing.T, userID rewards.UserID) rewards.ParticipationResult {
	test.Helper()
	result, err := harness.service.Participate(context.Background(), userID, harness.service.Today())
	if err != nil {
		test.Fatalf("participate: %v", err)
	}
	return result
}

func (harness *serviceHarness) mustBalance(test *testing.T, userID rewards.UserID) rewards.PointBalance {
	test.Helper()
	balance, err := harness.service.PointBalance(context.Background(), userID)
	if err != nil {
		test.Fatalf("point balance: %v", err)
	}
	return balance
}

func (harness *serviceHarness) mustBudget(test *testing.T, date rewards.Date) rewards.DailyBudget {
	test.Helper()
	budget, err := harness.store.GetBudget(context.Background(), date)
	if err != nil {
		test.Fatalf("get budget: %v", err)
	}
	return budget
}

func (harness *serviceHarness) mustRewardLot(test *testing.T, participationID rewards.ParticipationID) rewards.PointLot {
	test.Helper()
	lot, err := harness.store.FindPointLotBySource(context.Background(), rewards.LotSourceReward, participationID.Int64())
	if err != nil {
		test.Fatalf("find reward lot: %v", err)
	}
	return lot
}

func (harness *serviceHarness) mustLot(test *testing.T, lotID rewards.PointLotID) rewards.PointLot {
	test.Helper()
	lot, err := harness.store.GetPointLot(context.Background(), lotID)
	if err != nil {
		test.Fatalf("get lot: %v", err)
	}
	return lot
}

func (harness *serviceHarness) mustHistory(test *testing.T, userID rewards.UserID) []rewards.PointHistory {
	test.Helper()
	histories, err := harness.service.PointHistory(context.Background(), userID, 100)
	if err != nil {
		test.Fatalf("point history: %v", err)
	}
	return histories
}

// assertBalanceInvariant checks the cached balance against the live lots.
func (harness *serviceHarness) assertBalanceInvariant(test *testing.T, userID rewards.UserID) {
	test.Helper()
	balance := harness.mustBalance(test, userID)
	var sum rewards.Points
	for _, lot := range balance.Lots {
		if lot.Status != rewards.LotStatusActive {
			test.Fatalf("expected only active lots, got %s", lot.Status)
		}
		sum += lot.RemainingAmount
	}
	if balance.CurrentPoint != sum {
		test.Fatalf("cached balance %d differs from active lots %d", balance.CurrentPoint, sum)
	}
}
