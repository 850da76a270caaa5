package reqctx

import (
	"context"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Create a new context with the request id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Extract the request id from the context
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
