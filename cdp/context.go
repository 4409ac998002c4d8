package cdp

import "context"

type ctxKey int

const ctxKeySessionID ctxKey = iota

// WithSessionID returns a context that routes CDP commands executed
// with it to the target behind the given session.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// GetSessionID returns the session ID carried by ctx, or "" for the
// browser target.
func GetSessionID(ctx context.Context) string {
	if sid, ok := ctx.Value(ctxKeySessionID).(string); ok {
		return sid
	}
	return ""
}
