// Package events delivers committed reward events to NATS or Redis.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Bus names accepted by NewBus.
const (
	BusNone  = "none"
	BusNATS  = "nats"
	BusRedis = "redis"

	defaultTopicPrefix = "rewards"
)

// ErrUnsupportedBus is returned by NewBus for a name other than the Bus constants.
var ErrUnsupportedBus = errors.New("unsupported event bus")

// MessageBus moves an encoded event to a topic.
type MessageBus interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Close() error
}

// Publisher implements rewards.EventPublisher on top of a MessageBus.
type Publisher struct {
	bus    MessageBus
	prefix string
}

// NewPublisher returns a Publisher that sends every event to prefix.<type>.
func NewPublisher(bus MessageBus, prefix string) (*Publisher, error) {
	if bus == nil {
		return nil, fmt.Errorf("event bus is nil")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &Publisher{bus: bus, prefix: prefix}, nil
}

// Publish encodes event as JSON.
func (publisher *Publisher) Publish(ctx context.Context, event rewards.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return publisher.bus.Publish(ctx, Topic(publisher.prefix, event.Type), payload)
}

// Topic joins the prefix and the event type.
func Topic(prefix string, eventType string) string {
	return prefix + "." + eventType
}

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSBus publishes core NATS messages.
type NATSBus struct {
	conn natsConn
}

// ConnectNATS dials url and returns a bus over the connection.
func ConnectNATS(url string) (*NATSBus, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	conn, err := nats.Connect(url, nats.Name("rewardsd"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSBus{conn: conn}, nil
}

func (bus *NATSBus) Publish(_ context.Context, topic string, data []byte) error {
	return bus.conn.Publish(topic, data)
}

func (bus *NATSBus) Close() error {
	return bus.conn.Drain()
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisBus publishes on Redis pub/sub channels.
type RedisBus struct {
	client redisClient
}

// ConnectRedis opens a client for addr and pings it.
func ConnectRedis(ctx context.Context, addr string) (*RedisBus, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{client: client}, nil
}

func (bus *RedisBus) Publish(ctx context.Context, topic string, data []byte) error {
	return bus.client.Publish(ctx, topic, data).Err()
}

func (bus *RedisBus) Close() error {
	return bus.client.Close()
}

// BusConfig selects and addresses a bus.
type BusConfig struct {
	Kind      string
	NATSURL   string
	RedisAddr string
}

// NewBus connects the configured bus. BusNone returns a nil bus.
func NewBus(ctx context.Context, config BusConfig) (MessageBus, error) {
	switch strings.ToLower(strings.TrimSpace(config.Kind)) {
	case "", BusNone:
		return nil, nil
	case BusNATS:
		bus, err := ConnectNATS(config.NATSURL)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case BusRedis:
		bus, err := ConnectRedis(ctx, config.RedisAddr)
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBus, config.Kind)
	}
}
