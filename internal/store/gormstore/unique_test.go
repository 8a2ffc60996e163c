package gormstore

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestIsUniqueViolationIgnoresOtherConstraints(test *testing.T) {
	test.Parallel()
	db, err := gorm.Open(sqlite.Open(test.TempDir()+"/unique.db"), &gorm.Config{TranslateError: true})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(Models()...); err != nil {
		test.Fatalf("migrate failed: %v", err)
	}

	const insertParticipation = `insert into reward_participations
		(user_id, participated_date, won_amount, daily_budget_id, status, created_at)
		values (?, ?, 100, 1, 'SUCCESS', ?)`
	day := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	notNullErr := db.Exec(insertParticipation, nil, day, day).Error
	if notNullErr == nil {
		test.Fatalf("expected not null failure")
	}
	if isUniqueViolation(notNullErr, constraintParticipationUserDate) {
		test.Fatalf("not null failure read as a unique violation: %v", notNullErr)
	}

	if err := db.Exec(insertParticipation, 7, day, day).Error; err != nil {
		test.Fatalf("first insert: %v", err)
	}
	duplicateErr := db.Exec(insertParticipation, 7, day, day).Error
	if !isUniqueViolation(duplicateErr, constraintParticipationUserDate) {
		test.Fatalf("expected unique violation, got %v", duplicateErr)
	}
}
