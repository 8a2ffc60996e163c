package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/internal/config"
	"github.com/MarkoPoloResearchLab/spinrewards/internal/events"
	"github.com/MarkoPoloResearchLab/spinrewards/internal/oplog"
	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	databaseDriverPostgres = "postgres"
	databaseDriverSQLite   = "sqlite"
)

// catalogStore seeds the users and products the rewards core reads.
type catalogStore interface {
	CreateUser(ctx context.Context, nickname string) (rewards.User, error)
	CreateProduct(ctx context.Context, product rewards.Product) (rewards.Product, error)
}

type application struct {
	service *rewards.Service
	catalog catalogStore
	closers []func() error
	logger  *zap.Logger
}

func openApplication(ctx context.Context, cfg config.Config, logger *zap.Logger) (*application, error) {
	app := &application{logger: logger}
	store, catalog, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	app.catalog = catalog
	app.closers = append(app.closers, closeStore)

	location, err := cfg.Location()
	if err != nil {
		app.Close()
		return nil, err
	}
	options := []rewards.ServiceOption{
		rewards.WithLocation(location),
		rewards.WithDefaultDailyCap(rewards.Points(cfg.DefaultDailyCap)),
		rewards.WithRetryPolicy(rewards.RetryPolicy{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay}),
		rewards.WithOperationLogger(oplog.New(logger)),
	}

	bus, err := events.NewBus(ctx, events.BusConfig{Kind: cfg.EventBus, NATSURL: cfg.NATSURL, RedisAddr: cfg.RedisAddr})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("event bus: %w", err)
	}
	if bus != nil {
		app.closers = append(app.closers, bus.Close)
		publisher, err := events.NewPublisher(bus, cfg.EventTopicPrefix)
		if err != nil {
			app.Close()
			return nil, err
		}
		options = append(options, rewards.WithEventPublisher(publisher))
		logger.Info("publishing reward events", zap.String("bus", cfg.EventBus), zap.String("prefix", cfg.EventTopicPrefix))
	}

	service, err := rewards.NewService(store, time.Now, options...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("rewards service init: %w", err)
	}
	app.service = service
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (app *application) Close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		if err := app.closers[index](); err != nil {
			app.logger.Warn("close failed", zap.Error(err))
		}
	}
	app.closers = nil
}

func openStore(ctx context.Context, cfg config.Config) (rewards.Store, catalogStore, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := memstore.New()
		return store, store, func() error { return nil }, nil
	case config.StoreDriverPgx:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		store := pgstore.New(pool)
		return store, store, func() error { pool.Close(); return nil }, nil
	default:
		gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := prepareSchema(gormDB, driver); err != nil {
			return nil, nil, nil, errors.Join(err, cleanup())
		}
		store := gormstore.New(gormDB)
		return store, store, cleanup, nil
	}
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}
	switch driver {
	case databaseDriverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case databaseDriverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == databaseDriverSQLite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if config.IsPostgresURL(dsn) {
		return databaseDriverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "rewards.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return databaseDriverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return databaseDriverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != databaseDriverSQLite {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
