package rewards_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
)

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	store := memstore.New()
	testCases := []struct {
		name    string
		store   rewards.Store
		now     func() time.Time
		options []rewards.ServiceOption
	}{
		{name: "nil store", now: time.Now},
		{name: "nil clock", store: store},
		{name: "nil location", store: store, now: time.Now, options: []rewards.ServiceOption{rewards.WithLocation(nil)}},
		{name: "nil drawer", store: store, now: time.Now, options: []rewards.ServiceOption{rewards.WithRewardDrawer(nil)}},
		{name: "zero attempts", store: store, now: time.Now, options: []rewards.ServiceOption{rewards.WithRetryPolicy(rewards.RetryPolicy{BaseDelay: time.Millisecond})}},
		{name: "negative cap", store: store, now: time.Now, options: []rewards.ServiceOption{rewards.WithDefaultDailyCap(-1)}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := rewards.NewService(testCase.store, testCase.now, testCase.options...)
			if !errors.Is(err, rewards.ErrInvalidServiceConfig) {
				test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
			}
		})
	}
}

func TestTodayUsesConfiguredLocation(test *testing.T) {
	test.Parallel()
	seoul := time.FixedZone("KST", 9*60*60)
	instant := time.Date(2025, time.March, 1, 16, 30, 0, 0, time.UTC)
	service, err := rewards.NewService(memstore.New(), func() time.Time { return instant }, rewards.WithLocation(seoul))
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	if got := service.Today(); got != rewards.NewDate(2025, time.March, 2) {
		test.Fatalf("expected 2025-03-02, got %s", got)
	}
	if service.Location() != seoul {
		test.Fatalf("expected configured location, got %s", service.Location())
	}
}

func TestSecureDrawerStaysInRange(test *testing.T) {
	test.Parallel()
	drawer, err := rewards.NewSecureDrawer(rewards.MinRewardAmount, rewards.MaxRewardAmount)
	if err != nil {
		test.Fatalf("new drawer: %v", err)
	}
	for attempt := 0; attempt < 2000; attempt++ {
		amount, err := drawer.Draw()
		if err != nil {
			test.Fatalf("draw: %v", err)
		}
		if amount < rewards.MinRewardAmount || amount > rewards.MaxRewardAmount {
			test.Fatalf("amount %d out of range", amount)
		}
	}
	if _, err := rewards.NewSecureDrawer(500, 100); !errors.Is(err, rewards.ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for inverted range, got %v", err)
	}
}
