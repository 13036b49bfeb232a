package guard

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nodusnet/console/pkg/contextkeys"
	"github.com/nodusnet/console/pkg/httputil"
	"github.com/nodusnet/console/pkg/observability"
	"github.com/nodusnet/console/pkg/rbac"
	"github.com/nodusnet/console/pkg/session"
)

// SessionCookie is the cookie carrying the console session ID.
const SessionCookie = "console_session"

// SessionSource resolves session IDs to sessions and permission stores.
// *session.Manager satisfies this interface.
type SessionSource interface {
	Session(ctx context.Context, id string) (*session.Session, error)
	Permissions(id string) (*rbac.PermissionStore, bool)
}

// Guard enforces permission requirements on console routes. Decisions come
// from the per-session PermissionStore; a missing or not-ready store denies.
type Guard struct {
	sessions SessionSource
	log      *observability.Logger
	metrics  *observability.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the guard's logger.
func WithLogger(log *observability.Logger) Option {
	return func(g *Guard) { g.log = log }
}

// WithMetrics enables guard decision metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// New creates a Guard backed by the given session source.
func New(sessions SessionSource, opts ...Option) *Guard {
	g := &Guard{
		sessions: sessions,
		log:      observability.NewLogger(observability.InfoLevel, nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// sessionID extracts the session ID from the cookie or bearer header.
func sessionID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// Authenticate resolves the request's session and stores it in the context.
// Requests without a valid session get 401.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		if id == "" {
			g.deny(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		sess, err := g.sessions.Session(r.Context(), id)
		if err != nil {
			g.deny(w, r, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		ctx := contextkeys.WithSession(r.Context(), sess)
		ctx = observability.WithSessionID(ctx, sess.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// permissions returns the permission store for the request's session.
// Denies fail closed: no session, no store, or a store that never finished
// setup all return false.
func (g *Guard) permissions(r *http.Request) (*rbac.PermissionStore, *session.Session, bool) {
	sess := contextkeys.SessionFrom(r.Context())
	if sess == nil {
		return nil, nil, false
	}
	store, ok := g.sessions.Permissions(sess.ID)
	if !ok {
		return nil, sess, false
	}
	return store, sess, true
}

// Require returns middleware that allows the request only when the session
// holds (operation, resource) at minimumScope or broader.
func (g *Guard) Require(op rbac.Operation, res rbac.Resource, minimumScope rbac.Scope) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, sess, ok := g.permissions(r)
			if !ok {
				g.deny(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if !store.HasMinimalPermission(op, res, minimumScope) {
				g.log.WithFields(map[string]interface{}{
					"session_id": sess.ID,
					"operation":  string(op),
					"resource":   string(res),
					"scope":      string(minimumScope),
					"path":       r.URL.Path,
				}).Warn("permission denied")
				g.deny(w, r, http.StatusForbidden, "permission denied")
				return
			}
			g.allow(r)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOrganization returns middleware that allows the request only when
// the session may perform (operation, resource) against the organization
// named by the orgVar path parameter. Global scope always qualifies;
// organization scope qualifies only for the user's own organization.
func (g *Guard) RequireOrganization(op rbac.Operation, res rbac.Resource, orgVar string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, sess, ok := g.permissions(r)
			if !ok {
				g.deny(w, r, http.StatusUnauthorized, "authentication required")
				return
			}

			orgID, err := httputil.ParsePathInt64(r, orgVar)
			if err != nil {
				httputil.WriteBadRequest(w, err.Error())
				return
			}

			if !store.Can(op, res, orgID) {
				g.log.WithFields(map[string]interface{}{
					"session_id":      sess.ID,
					"operation":       string(op),
					"resource":        string(res),
					"organization_id": orgID,
				}).Warn("permission denied")
				g.deny(w, r, http.StatusForbidden, "permission denied")
				return
			}
			g.allow(r)
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) allow(r *http.Request) {
	if g.metrics != nil {
		g.metrics.GuardDecisionsTotal.WithLabelValues(routeLabel(r), "allow").Inc()
	}
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, status int, message string) {
	if g.metrics != nil {
		g.metrics.GuardDecisionsTotal.WithLabelValues(routeLabel(r), "deny").Inc()
	}
	httputil.WriteErrorMessage(w, status, message)
}

// routeLabel prefers the mux route template over the raw path to keep
// metric cardinality bounded.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
