package rewards

import (
	"context"
	"time"
)

// Event types published after a transaction commits.
const (
	EventParticipationWon       = "participation.won"
	EventParticipationCancelled = "participation.cancelled"
	EventOrderCompleted         = "order.completed"
	EventOrderCancelled         = "order.cancelled"
)

// Event is the wire form of a committed domain change.
type Event struct {
	Type        string    `json:"type"`
	OperationID string    `json:"operation_id"`
	UserID      int64     `json:"user_id"`
	Amount      int64     `json:"amount"`
	ReferenceID int64     `json:"reference_id"`
	Date        string    `json:"date,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventPublisher delivers events to an external bus. Publication happens
// outside the transaction; failures are logged, never rolled back.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// WithEventPublisher wires a publisher for committed domain events.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(service *Service) {
		service.publisher = publisher
	}
}
