// Package shared holds the request context keys and response helpers used by
// both the handlers and the middleware.
package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of the keys this package stores in a request context.
type ContextKey string

const (
	// UserIDContextKey carries the authenticated owner's uuid.UUID.
	UserIDContextKey ContextKey = "userID"

	// TraceIDKey carries the request trace ID.
	TraceIDKey ContextKey = "traceID"

	// TraceIDHeader lets an upstream proxy pass its own trace ID through.
	TraceIDHeader = "X-Trace-Id"
)

// SetTraceID stores traceID in ctx, generating one when traceID is empty.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID stored in ctx, or "".
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// NewTraceID returns a random 32 character hex ID.
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
