package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/redis/go-redis/v9"
)

type recordedMessage struct {
	topic string
	data  []byte
}

type fakeNATSConn struct {
	messages []recordedMessage
	drained  bool
}

func (conn *fakeNATSConn) Publish(subject string, data []byte) error {
	conn.messages = append(conn.messages, recordedMessage{topic: subject, data: data})
	return nil
}

func (conn *fakeNATSConn) Drain() error {
	conn.drained = true
	return nil
}

type fakeRedisClient struct {
	messages []recordedMessage
	err      error
}

func (client *fakeRedisClient) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	if client.err != nil {
		return redis.NewIntResult(0, client.err)
	}
	client.messages = append(client.messages, recordedMessage{topic: channel, data: message.([]byte)})
	return redis.NewIntResult(1, nil)
}

func (client *fakeRedisClient) Close() error {
	return nil
}

func sampleEvent() rewards.Event {
	return rewards.Event{
		Type:        rewards.EventParticipationWon,
		OperationID: "op-1",
		UserID:      7,
		Amount:      400,
		ReferenceID: 11,
		Date:        "2025-03-01",
		OccurredAt:  time.Date(2025, time.March, 1, 3, 0, 0, 0, time.UTC),
	}
}

func TestPublisherSendsJSONToNATS(test *testing.T) {
	test.Parallel()
	conn := &fakeNATSConn{}
	publisher, err := NewPublisher(&NATSBus{conn: conn}, "")
	if err != nil {
		test.Fatalf("new publisher: %v", err)
	}
	if err := publisher.Publish(context.Background(), sampleEvent()); err != nil {
		test.Fatalf("publish: %v", err)
	}
	if len(conn.messages) != 1 || conn.messages[0].topic != "rewards.participation.won" {
		test.Fatalf("unexpected messages %+v", conn.messages)
	}
	var decoded rewards.Event
	if err := json.Unmarshal(conn.messages[0].data, &decoded); err != nil {
		test.Fatalf("decode: %v", err)
	}
	if decoded.UserID != 7 || decoded.Amount != 400 || decoded.Date != "2025-03-01" {
		test.Fatalf("unexpected payload %+v", decoded)
	}
	if err := (&NATSBus{conn: conn}).Close(); err != nil || !conn.drained {
		test.Fatalf("expected drain on close, got %v", err)
	}
}

func TestPublisherSurfacesRedisFailure(test *testing.T) {
	test.Parallel()
	client := &fakeRedisClient{}
	publisher, err := NewPublisher(&RedisBus{client: client}, "loyalty")
	if err != nil {
		test.Fatalf("new publisher: %v", err)
	}
	if err := publisher.Publish(context.Background(), sampleEvent()); err != nil {
		test.Fatalf("publish: %v", err)
	}
	if len(client.messages) != 1 || client.messages[0].topic != "loyalty.participation.won" {
		test.Fatalf("unexpected messages %+v", client.messages)
	}
	client.err = errors.New("connection reset")
	if err := publisher.Publish(context.Background(), sampleEvent()); err == nil {
		test.Fatalf("expected redis failure to surface")
	}
}

func TestNewBusSelection(test *testing.T) {
	test.Parallel()
	bus, err := NewBus(context.Background(), BusConfig{Kind: BusNone})
	if err != nil || bus != nil {
		test.Fatalf("expected no bus, got %v (%v)", bus, err)
	}
	if _, err := NewBus(context.Background(), BusConfig{Kind: "kafka"}); !errors.Is(err, ErrUnsupportedBus) {
		test.Fatalf("expected ErrUnsupportedBus, got %v", err)
	}
	if _, err := NewBus(context.Background(), BusConfig{Kind: BusNATS}); err == nil {
		test.Fatalf("expected missing nats url error")
	}
	if _, err := NewPublisher(nil, ""); err == nil {
		test.Fatalf("expected nil bus error")
	}
}
