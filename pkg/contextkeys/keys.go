// Package contextkeys provides centralized context key definitions
//
// All context keys shared between packages are defined here so that key
// usage stays discoverable and typo-proof. Keys used only inside a single
// package (request ID, logger) live with that package.
package contextkeys

import (
	"context"

	"github.com/nodusnet/console/pkg/session"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *session.Session
	// Set by: guard.Middleware after resolving the session cookie or bearer token
	// Required by: all guarded API handlers
	SessionKey Key = "console_session"
)

// WithSession adds the resolved console session to the context
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// SessionFrom retrieves the console session from the context, or nil when
// the request is unauthenticated.
func SessionFrom(ctx context.Context) *session.Session {
	if sess, ok := ctx.Value(SessionKey).(*session.Session); ok {
		return sess
	}
	return nil
}
