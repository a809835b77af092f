package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type to avoid collisions with other packages'
// context keys.
type contextKey struct{}

var loggerKey contextKey

// WithLogger returns a copy of the context carrying the given logger.
// Handlers and middleware attach request-scoped loggers (e.g. with a
// trace ID) so lower layers can log with the same correlation fields.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in the context, or the default
// logger if none is present.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(loggerKey).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}

// FromContextOrDefault returns the logger stored in the context, or the
// provided fallback if none is present. The fallback lets components keep
// their own component-scoped logger when no request logger exists.
func FromContextOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if log, ok := ctx.Value(loggerKey).(*slog.Logger); ok && log != nil {
		return log
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
