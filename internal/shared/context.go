package shared

import "context"

type sessionContextKey struct{}

type appPathContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithAppPath stores the SPA's current navigation path in context.
// The path arrives on the X-App-Path header (Referer as fallback) and feeds
// realm resolution for tenant-shaped requests issued from system screens.
func ContextWithAppPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, appPathContextKey{}, path)
}

// AppPathFromContext extracts the current navigation path, or "".
func AppPathFromContext(ctx context.Context) string {
	path, _ := ctx.Value(appPathContextKey{}).(string)
	return path
}
