// Package logging bridges the engine's operation callbacks onto zap.
package logging

import (
	"context"

	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
	"go.uber.org/zap"
)

// ZapOperationLogger emits one structured log line per cart operation.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps logger; a nil logger falls back to a no-op.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

func (adapter *ZapOperationLogger) LogOperation(_ context.Context, entry cart.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.Int64("at_unix_utc", entry.AtUnixUTC),
	}
	if !entry.ItemID.IsZero() {
		fields = append(fields, zap.String("item_id", entry.ItemID.String()))
	}
	if entry.ProductID.String() != "" {
		fields = append(fields, zap.String("product_id", entry.ProductID.String()))
	}
	if entry.Delta != 0 {
		fields = append(fields, zap.Int64("delta", entry.Delta))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("cart operation", fields...)
		return
	}
	adapter.logger.Info("cart operation", fields...)
}
