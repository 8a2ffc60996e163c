package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a transaction is re-run after a stale write.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns five attempts with exponential backoff from 10ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: defaultRetryAttempts, BaseDelay: defaultRetryBaseDelay}
}

// Service contains the reward program logic over a Store.
type Service struct {
	store           Store
	nowFn           func() time.Time
	location        *time.Location
	drawer          RewardDrawer
	retryPolicy     RetryPolicy
	defaultDailyCap Points
	logger          OperationLogger
	publisher       EventPublisher
}

// WithLocation sets the zone calendar days are resolved in (UTC by default).
func WithLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		service.location = location
	}
}

// WithRetryPolicy overrides the stale-write retry policy.
func WithRetryPolicy(policy RetryPolicy) ServiceOption {
	return func(service *Service) {
		service.retryPolicy = policy
	}
}

// WithDefaultDailyCap lets participation provision a missing day's budget
// with dailyCap. Zero disables lazy provisioning.
func WithDefaultDailyCap(dailyCap Points) ServiceOption {
	return func(service *Service) {
		service.defaultDailyCap = dailyCap
	}
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	drawer, err := NewSecureDrawer(MinRewardAmount, MaxRewardAmount)
	if err != nil {
		return nil, err
	}
	service := &Service{
		store:       store,
		nowFn:       now,
		location:    time.UTC,
		drawer:      drawer,
		retryPolicy: DefaultRetryPolicy(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.location == nil {
		return nil, fmt.Errorf("%w: location is nil", ErrInvalidServiceConfig)
	}
	if service.drawer == nil {
		return nil, fmt.Errorf("%w: reward drawer is nil", ErrInvalidServiceConfig)
	}
	if service.retryPolicy.Attempts < 1 || service.retryPolicy.BaseDelay <= 0 {
		return nil, fmt.Errorf("%w: retry policy %+v", ErrInvalidServiceConfig, service.retryPolicy)
	}
	if service.defaultDailyCap < 0 {
		return nil, fmt.Errorf("%w: default daily cap is negative", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Today resolves the current calendar day in the configured zone.
func (service *Service) Today() Date {
	return DateOf(service.nowFn(), service.location)
}

// Location returns the configured zone.
func (service *Service) Location() *time.Location {
	return service.location
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC()
}

// runInTx runs fn in one transaction, re-running the whole transaction when a
// compare-and-set write loses to a concurrent writer.
func (service *Service) runInTx(ctx context.Context, fn func(ctx context.Context, transactionStore Store) error) error {
	backoff := retry.WithMaxRetries(
		uint64(service.retryPolicy.Attempts-1),
		retry.WithJitterPercent(retryJitterPercent, retry.NewExponential(service.retryPolicy.BaseDelay)),
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		transactionError := service.store.WithTx(ctx, fn)
		if errors.Is(transactionError, ErrStaleVersion) {
			return retry.RetryableError(transactionError)
		}
		return transactionError
	})
	if errors.Is(err, ErrStaleVersion) {
		return fmt.Errorf("%w: retries exhausted after %d attempts: %v", ErrTransientConflict, service.retryPolicy.Attempts, err)
	}
	return err
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) publish(ctx context.Context, event Event) {
	if service.publisher == nil {
		return
	}
	event.OccurredAt = service.now()
	if err := service.publisher.Publish(ctx, event); err != nil {
		service.logOperation(ctx, OperationLog{
			OperationID: event.OperationID,
			Operation:   operationPublishEvent,
			UserID:      UserID(event.UserID),
			Amount:      Points(event.Amount),
			ReferenceID: event.ReferenceID,
			Error:       fmt.Errorf("publish %s: %w", event.Type, err),
		})
	}
}

func newOperationID() string {
	return uuid.NewString()
}
