package observability

import (
	"context"

	"github.com/google/uuid"
)

// Log attribute names for the ids carried in a context.
const (
	RequestIDKey = "request_id"
	EventIDKey   = "event_id"
)

type ctxKey int

const (
	requestIDCtxKey ctxKey = iota
	eventIDCtxKey
)

// WithRequestID tags ctx with the HTTP request or CLI invocation id,
// generating one when id is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, requestIDCtxKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDCtxKey)
}

// WithEventID tags ctx with the processor event being handled.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDCtxKey, id)
}

func EventIDFromContext(ctx context.Context) string {
	return stringValue(ctx, eventIDCtxKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
