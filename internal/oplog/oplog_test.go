package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperationLevels(test *testing.T) {
	test.Parallel()
	core, recorded := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(core))

	logger.LogOperation(context.Background(), rewards.OperationLog{
		OperationID: "op-1",
		Operation:   "participate",
		UserID:      3,
		Amount:      400,
		ReferenceID: 9,
		Status:      "ok",
	})
	logger.LogOperation(context.Background(), rewards.OperationLog{
		OperationID: "op-2",
		Operation:   "purchase",
		UserID:      3,
		Status:      "error",
		Error:       rewards.InsufficientPointError{UserID: 3, Required: 700, Available: 100},
	})
	logger.LogOperation(context.Background(), rewards.OperationLog{
		OperationID: "op-3",
		Operation:   "cancel_order",
		Status:      "error",
		Error:       errors.New("connection refused"),
	})

	entries := recorded.AllUntimed()
	if len(entries) != 3 {
		test.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["amount"] != int64(400) {
		test.Fatalf("unexpected success entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error_kind"] != "insufficient_point" {
		test.Fatalf("unexpected domain failure entry %+v", entries[1])
	}
	if entries[2].Level != zapcore.ErrorLevel || entries[2].ContextMap()["error_kind"] != "internal" {
		test.Fatalf("unexpected internal failure entry %+v", entries[2])
	}
	if _, ok := entries[2].ContextMap()["user_id"]; ok {
		test.Fatalf("expected zero user id to be omitted")
	}
	if entries[0].LoggerName != "rewards" {
		test.Fatalf("expected named logger, got %q", entries[0].LoggerName)
	}
}

func TestNewAcceptsNilLogger(test *testing.T) {
	test.Parallel()
	New(nil).LogOperation(context.Background(), rewards.OperationLog{Operation: "expire_points"})
}
