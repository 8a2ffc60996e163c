package rewards_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
)

func TestExpirePointsMarksLapsedLots(test *testing.T) {
	test.Parallel()
	harness := newHarness(test, rewards.WithRewardDrawer(newSequenceDrawer(300)))
	user := harness.mustUser(test, "forgetful")
	result := harness.mustParticipate(test, user.ID)
	harness.clock.Advance(31 * day)

	balance := harness.mustBalance(test, user.ID)
	if balance.CurrentPoint != 300 || balance.SpendablePoint != 0 {
		test.Fatalf("expected unswept lot to be unspendable, got %+v", balance)
	}

	summary, err := harness.service.ExpirePoints(context.Background())
	if err != nil {
		test.Fatalf("expire points: %v", err)
	}
	if summary.ExpiredLots != 1 || summary.ExpiredPoints != 300 {
		test.Fatalf("unexpected summary: %+v", summary)
	}
	lot := harness.mustRewardLot(test, result.ParticipationID)
	if lot.Status != rewards.LotStatusExpired || lot.RemainingAmount != 300 {
		test.Fatalf("expected EXPIRED lot keeping its remainder, got %+v", lot)
	}
	histories := harness.mustHistory(test, user.ID)
	if histories[0].Type != rewards.TransactionExpire || histories[0].ReferenceType != rewards.ReferenceExpiry || histories[0].BalanceAfter != 0 {
		test.Fatalf("unexpected expiry history: %+v", histories[0])
	}
	harness.assertBalanceInvariant(test, user.ID)

	summary, err = harness.service.ExpirePoints(context.Background())
	if err != nil {
		test.Fatalf("expire points again: %v", err)
	}
	if summary.ExpiredLots != 0 {
		test.Fatalf("expected nothing left to expire, got %+v", summary)
	}
}

func TestExpirePointsAcrossUsers(test *testing.T) {
	test.Parallel()
	harness := newHarness(test, rewards.WithRewardDrawer(newSequenceDrawer(200)))
	users := []rewards.User{harness.mustUser(test, "a"), harness.mustUser(test, "b"), harness.mustUser(test, "c")}
	for _, user := range users {
		harness.mustParticipate(test, user.ID)
	}
	harness.clock.Advance(10 * day)
	keeper := harness.mustUser(test, "keeper")
	harness.mustParticipate(test, keeper.ID)
	harness.clock.Advance(21 * day)

	summary, err := harness.service.ExpirePoints(context.Background())
	if err != nil {
		test.Fatalf("expire points: %v", err)
	}
	if summary.ExpiredLots != 3 || summary.ExpiredPoints != 600 {
		test.Fatalf("unexpected summary: %+v", summary)
	}
	for _, user := range users {
		if balance := harness.mustBalance(test, user.ID); balance.CurrentPoint != 0 {
			test.Fatalf("expected user %d swept, got %d", user.ID, balance.CurrentPoint)
		}
	}
	if balance := harness.mustBalance(test, keeper.ID); balance.CurrentPoint != 200 {
		test.Fatalf("expected keeper untouched, got %d", balance.CurrentPoint)
	}
}

func TestPurchaseSweepsLapsedLotsBeforeSpending(test *testing.T) {
	test.Parallel()
	harness := newHarness(test, rewards.WithRewardDrawer(newSequenceDrawer(300, 500)))
	user := harness.mustUser(test, "late-buyer")
	product := harness.mustProduct(test, "bag", 400, 2)
	first := harness.mustParticipate(test, user.ID)
	harness.clock.Advance(10 * day)
	second := harness.mustParticipate(test, user.ID)
	harness.clock.Advance(21 * day)

	order, err := harness.service.Purchase(context.Background(), user.ID, product.ID, 1)
	if err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if order.BalanceAfter != 100 {
		test.Fatalf("expected balance 100, got %d", order.BalanceAfter)
	}
	if lot := harness.mustRewardLot(test, first.ParticipationID); lot.Status != rewards.LotStatusExpired {
		test.Fatalf("expected first lot EXPIRED, got %+v", lot)
	}
	if lot := harness.mustRewardLot(test, second.ParticipationID); lot.RemainingAmount != 100 {
		test.Fatalf("expected second lot at 100, got %+v", lot)
	}
	harness.assertBalanceInvariant(test, user.ID)
}

func TestPurchaseCannotSpendLapsedPoints(test *testing.T) {
	test.Parallel()
	harness := newHarness(test, rewards.WithRewardDrawer(newSequenceDrawer(900)))
	user := harness.mustUser(test, "too-late")
	product := harness.mustProduct(test, "hat", 500, 2)
	harness.mustParticipate(test, user.ID)
	harness.clock.Advance(rewards.PointLotLifetime)

	_, err := harness.service.Purchase(context.Background(), user.ID, product.ID, 1)
	var insufficient rewards.InsufficientPointError
	if !errors.As(err, &insufficient) {
		test.Fatalf("expected InsufficientPointError, got %v", err)
	}
	if insufficient.Available != 0 {
		test.Fatalf("expected nothing available, got %d", insufficient.Available)
	}
}

func TestPointBalanceReportsExpiringSoon(test *testing.T) {
	test.Parallel()
	harness := newHarness(test, rewards.WithRewardDrawer(newSequenceDrawer(300, 800)))
	user := harness.mustUser(test, "planner")
	harness.mustParticipate(test, user.ID)
	harness.clock.Advance(20 * day)
	harness.mustParticipate(test, user.ID)
	harness.clock.Advance(5 * day)

	balance := harness.mustBalance(test, user.ID)
	if balance.CurrentPoint != 1100 || balance.SpendablePoint != 1100 {
		test.Fatalf("unexpected totals: %+v", balance)
	}
	if balance.ExpiringWithin7Days != 300 {
		test.Fatalf("expected 300 expiring soon, got %d", balance.ExpiringWithin7Days)
	}
	if len(balance.Lots) != 2 || balance.Lots[0].RemainingAmount != 300 {
		test.Fatalf("expected lots ordered by expiry, got %+v", balance.Lots)
	}
}

func TestPointHistoryValidatesLimit(test *testing.T) {
	test.Parallel()
	harness := newHarness(test)
	user := harness.mustUser(test, "reader")

	testCases := []struct {
		name    string
		limit   int
		wantErr error
	}{
		{name: "negative", limit: -1, wantErr: rewards.ErrInvalidPage},
		{name: "too large", limit: 101, wantErr: rewards.ErrInvalidPage},
		{name: "default", limit: 0},
	}
	for _, testCase := range testCases {
		_, err := harness.service.PointHistory(context.Background(), user.ID, testCase.limit)
		if testCase.wantErr == nil && err != nil {
			test.Fatalf("%s: unexpected error %v", testCase.name, err)
		}
		if testCase.wantErr != nil && !errors.Is(err, testCase.wantErr) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.wantErr, err)
		}
	}
	if _, err := harness.service.PointHistory(context.Background(), 9999, 10); !errors.Is(err, rewards.ErrUserNotFound) {
		test.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCachedBalanceSurvivesMixedOperations(test *testing.T) {
	test.Parallel()
	harness := newHarness(test, rewards.WithRewardDrawer(newSequenceDrawer(600, 350, 900, 150)))
	user := harness.mustUser(test, "busy")
	product := harness.mustProduct(test, "kit", 250, 20)
	var participations []rewards.ParticipationResult
	for index := 0; index < 4; index++ {
		participations = append(participations, harness.mustParticipate(test, user.ID))
		harness.clock.Advance(day)
	}
	harness.assertBalanceInvariant(test, user.ID)

	order, err := harness.service.Purchase(context.Background(), user.ID, product.ID, 3)
	if err != nil {
		test.Fatalf("purchase: %v", err)
	}
	harness.assertBalanceInvariant(test, user.ID)

	if _, err := harness.service.CancelParticipation(context.Background(), participations[3].ParticipationID); err != nil {
		test.Fatalf("cancel untouched participation: %v", err)
	}
	harness.assertBalanceInvariant(test, user.ID)

	if _, err := harness.service.CancelParticipation(context.Background(), participations[0].ParticipationID); !errors.Is(err, rewards.ErrAlreadyUsed) {
		test.Fatalf("expected ErrAlreadyUsed, got %v", err)
	}
	if _, err := harness.service.CancelOrder(context.Background(), order.ID); err != nil {
		test.Fatalf("cancel order: %v", err)
	}
	harness.assertBalanceInvariant(test, user.ID)

	balance := harness.mustBalance(test, user.ID)
	if balance.CurrentPoint != 600+350+900 {
		test.Fatalf("expected 1850, got %d", balance.CurrentPoint)
	}
}
