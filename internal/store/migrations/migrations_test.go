package migrations

import (
	"context"
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedSchemaDeclaresConstraints(test *testing.T) {
	test.Parallel()
	files, err := fs.Glob(embedMigrations, migrationsDir+"/*.sql")
	if err != nil {
		test.Fatalf("glob migrations: %v", err)
	}
	if len(files) == 0 {
		test.Fatalf("expected embedded migrations")
	}
	contents, err := fs.ReadFile(embedMigrations, files[0])
	if err != nil {
		test.Fatalf("read migration: %v", err)
	}
	schema := string(contents)
	for _, fragment := range []string{
		"-- +goose Up",
		"-- +goose Down",
		"constraint uniq_participation_user_date unique (user_id, participated_date)",
		"constraint uniq_daily_budgets_date unique (budget_date)",
		"constraint uniq_users_nickname unique (nickname)",
		"check (remaining_amount <= total_amount)",
	} {
		if !strings.Contains(schema, fragment) {
			test.Fatalf("expected schema to contain %q", fragment)
		}
	}
}

func TestRunRejectsBadInput(test *testing.T) {
	test.Parallel()
	if err := Run(context.Background(), "postgres://localhost/rewards", "sideways"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		test.Fatalf("expected unsupported command error, got %v", err)
	}
	if err := Run(context.Background(), "", CommandUp); err == nil {
		test.Fatalf("expected missing dsn error")
	}
}
