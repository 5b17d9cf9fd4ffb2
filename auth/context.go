package auth

import "context"

type contextKey int

const sessionKey contextKey = iota

// WithSession returns a new context with the given session attached.
func WithSession(ctx context.Context, session *UserSession) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext retrieves the session from the context.
// Returns nil if no session is present.
func SessionFromContext(ctx context.Context) *UserSession {
	session, _ := ctx.Value(sessionKey).(*UserSession)
	return session
}

// UserIDFromContext retrieves the user ID from the context session.
// Returns empty string if no session is present.
func UserIDFromContext(ctx context.Context) string {
	session := SessionFromContext(ctx)
	if session == nil {
		return ""
	}
	return session.UserID
}
