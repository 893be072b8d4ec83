package ctxkeys

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	PrincipalKey contextKey = "principal"
	RequestIDKey contextKey = "request_id"
)

// Principal returns the id of the caller the request acts for, or "".
func Principal(ctx context.Context) string {
	id, _ := ctx.Value(PrincipalKey).(string)
	return id
}

func WithPrincipal(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, PrincipalKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
