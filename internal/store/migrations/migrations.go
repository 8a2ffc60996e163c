// Package migrations applies the PostgreSQL schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"slices"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	migrationsDir    = "sql"
	migrationTimeout = 60 * time.Second
)

// Supported goose commands.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandStatus  = "status"
	CommandRedo    = "redo"
	CommandVersion = "version"
)

//go:embed sql/*.sql
var embedMigrations embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// Commands lists the commands Run accepts.
func Commands() []string {
	return []string{CommandUp, CommandDown, CommandStatus, CommandRedo, CommandVersion}
}

// Run executes a goose command against the database at dsn.
func Run(ctx context.Context, dsn string, command string) error {
	if !slices.Contains(Commands(), command) {
		return fmt.Errorf("unsupported migration command %q", command)
	}
	if dsn == "" {
		return fmt.Errorf("database url is required")
	}
	migrationCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql open: %w", err)
	}
	defer func() { _ = db.Close() }()

	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.RunContext(migrationCtx, command, db, migrationsDir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
