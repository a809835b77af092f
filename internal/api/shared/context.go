package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// ContextKey is a private key type for context values set by this package.
type ContextKey string

// Context keys for various values
const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// SetTraceID returns a copy of the context carrying a freshly generated
// trace ID. If random generation fails the context is returned unchanged;
// responses then simply omit the trace ID.
func SetTraceID(ctx context.Context) context.Context {
	buf := make([]byte, TraceIDLength)
	if _, err := rand.Read(buf); err != nil {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, hex.EncodeToString(buf))
}

// GetTraceID returns the trace ID stored in the context, or an empty
// string if none is present.
func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}
