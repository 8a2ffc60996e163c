// Package oplog writes rewards operation logs through zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"go.uber.org/zap"
)

const (
	messageOperation       = "rewards operation"
	messageOperationFailed = "rewards operation failed"
)

// Logger implements rewards.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps logger. A nil logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("rewards")}
}

func (operationLogger *Logger) LogOperation(_ context.Context, entry rewards.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("operation_id", entry.OperationID),
		zap.String("status", entry.Status),
	}
	if entry.UserID != 0 {
		fields = append(fields, zap.Int64("user_id", entry.UserID.Int64()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount.Int64()))
	}
	if entry.ReferenceID != 0 {
		fields = append(fields, zap.Int64("reference_id", entry.ReferenceID))
	}
	if entry.Error == nil {
		operationLogger.logger.Info(messageOperation, fields...)
		return
	}
	kind := rewards.KindOf(entry.Error)
	fields = append(fields, zap.String("error_kind", string(kind)), zap.Error(entry.Error))
	switch kind {
	case rewards.KindInternal, rewards.KindTransientConflict:
		operationLogger.logger.Error(messageOperationFailed, fields...)
	default:
		operationLogger.logger.Warn(messageOperationFailed, fields...)
	}
}
