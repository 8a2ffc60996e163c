// Package config holds the rewards daemon settings.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// Store drivers.
const (
	StoreDriverGorm   = "gorm"
	StoreDriverPgx    = "pgx"
	StoreDriverMemory = "memory"
)

// Event buses.
const (
	EventBusNone  = "none"
	EventBusNATS  = "nats"
	EventBusRedis = "redis"
)

const (
	defaultDatabaseURL            = "sqlite:///tmp/rewards.db"
	defaultStoreDriver            = StoreDriverGorm
	defaultListenAddr             = ":8080"
	defaultTimezone               = "Asia/Seoul"
	defaultDailyCap         int64 = 100000
	defaultRetryAttempts          = 5
	defaultRetryBaseDelay         = 10 * time.Millisecond
	defaultEventBus               = EventBusNone
	defaultEventTopicPrefix       = "rewards"
	defaultExpiryInterval         = time.Hour
	defaultAllowedOrigin          = "http://localhost:3000"
	defaultRequestTimeout         = 5 * time.Second
)

// Config aggregates runtime settings for rewardsd.
type Config struct {
	DatabaseURL      string
	StoreDriver      string
	ListenAddr       string
	Timezone         string
	DefaultDailyCap  int64
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	EventBus         string
	EventTopicPrefix string
	NATSURL          string
	RedisAddr        string
	ExpiryInterval   time.Duration
	AllowedOrigins   []string
	RequestTimeout   time.Duration
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, defaultStoreDriver))
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.Timezone = defaultIfEmpty(cfg.Timezone, defaultTimezone)
	cfg.EventBus = strings.ToLower(defaultIfEmpty(cfg.EventBus, defaultEventBus))
	cfg.EventTopicPrefix = defaultIfEmpty(cfg.EventTopicPrefix, defaultEventTopicPrefix)
	if cfg.DefaultDailyCap == 0 {
		cfg.DefaultDailyCap = defaultDailyCap
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.ExpiryInterval == 0 {
		cfg.ExpiryInterval = defaultExpiryInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}

	switch cfg.StoreDriver {
	case StoreDriverGorm, StoreDriverPgx, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver == StoreDriverPgx && !IsPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("pgx store requires a postgres database url")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.DefaultDailyCap < 0 {
		return fmt.Errorf("default daily cap must not be negative")
	}
	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if cfg.RetryBaseDelay < 0 {
		return fmt.Errorf("retry base delay must be positive")
	}
	if cfg.ExpiryInterval < 0 {
		return fmt.Errorf("expiry interval must not be negative")
	}
	switch cfg.EventBus {
	case EventBusNone:
	case EventBusNATS:
		if strings.TrimSpace(cfg.NATSURL) == "" {
			return fmt.Errorf("nats url is required for the nats event bus")
		}
	case EventBusRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return fmt.Errorf("redis addr is required for the redis event bus")
		}
	default:
		return fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}
	return nil
}

// Location resolves the configured timezone.
func (cfg Config) Location() (*time.Location, error) {
	return time.LoadLocation(cfg.Timezone)
}

// IsPostgresURL reports whether dsn addresses PostgreSQL.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
