package shared

import "context"

type ctxKeySession struct{}

// ContextWithSession attaches the request session to the context. The session
// middleware installs it once per request; handlers read it back to stage
// login state before the commit hook persists it.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKeySession{}, sess)
}

// SessionFromContext returns the request session, or nil outside the session
// middleware.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKeySession{}).(*Session)
	return sess
}
