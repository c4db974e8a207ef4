package middleware

import "context"

type contextKey string

const ctxCartSessionID contextKey = "cart_session_id"

// CartSessionIDFromContext returns the cart session resolved by CartSession, or "".
func CartSessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCartSessionID).(string); ok {
		return v
	}
	return ""
}

// WithCartSessionID injects the cart session identifier into the context.
func WithCartSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartSessionID, sessionID)
}
