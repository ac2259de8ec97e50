package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/kiranabazaar/api/internal/platform/requestctx/logger"
	cartIDContextKey contextKey = "github.com/kiranabazaar/api/internal/platform/requestctx/cartID"
	traceContextKey  contextKey = "github.com/kiranabazaar/api/internal/platform/requestctx/trace"
)

var noopLogger = zap.NewNop()

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// WithCartID stores the caller's cart identity resolved by the handler shim.
func WithCartID(ctx context.Context, cartID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cartIDContextKey, cartID)
}

// CartID extracts the caller's cart identity when present.
func CartID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(cartIDContextKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// WithTraceID stores the trace identifier on the context for log correlation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, traceID)
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceContextKey).(string)
	return id
}
