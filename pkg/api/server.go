package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/guard"
	"github.com/nodusnet/console/pkg/observability"
	"github.com/nodusnet/console/pkg/rbac"
	"github.com/nodusnet/console/pkg/session"
)

// Server is the console's HTTP API. Every route except login and the SSO
// endpoints runs behind the guard; permission checks mirror what the
// platform itself enforces so the console can deny before proxying.
type Server struct {
	router   *mux.Router
	sessions *session.Manager
	guard    *guard.Guard
	policy   *guard.PolicyGuard
	audit    audit.Logger
	recent   *audit.MemoryLogger
	sso      *SSOHandlers
	metrics  *observability.Metrics
	log      *observability.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAudit sets the audit logger for permission edits and logins.
func WithAudit(logger audit.Logger) ServerOption {
	return func(s *Server) { s.audit = logger }
}

// WithRecentEvents exposes the in-memory audit ring on GET /api/audit.
func WithRecentEvents(recent *audit.MemoryLogger) ServerOption {
	return func(s *Server) { s.recent = recent }
}

// WithSSO registers the OIDC login endpoints.
func WithSSO(sso *SSOHandlers) ServerOption {
	return func(s *Server) { s.sso = sso }
}

// WithPolicy overlays the reloadable route policy on guarded routes.
func WithPolicy(pg *guard.PolicyGuard) ServerOption {
	return func(s *Server) { s.policy = pg }
}

// WithMetrics enables login metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(log *observability.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// NewServer creates the API server and wires up all routes.
func NewServer(sessions *session.Manager, g *guard.Guard, opts ...ServerOption) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		sessions: sessions,
		guard:    g,
		audit:    audit.NopLogger(),
		log:      observability.NewLogger(observability.InfoLevel, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Unauthenticated entry points.
	api.HandleFunc("/login", s.login).Methods("POST")
	if s.sso != nil {
		s.sso.metrics = s.metrics
		s.sso.RegisterRoutes(api)
	}

	// Everything else needs a session.
	authed := api.NewRoute().Subrouter()
	authed.Use(mux.MiddlewareFunc(func(next http.Handler) http.Handler {
		return s.guard.Authenticate(next)
	}))

	authed.HandleFunc("/logout", s.logout).Methods("POST")
	authed.HandleFunc("/whoami", s.whoami).Methods("GET")

	// Rule catalog comes from the session's own permission store; being
	// authenticated is enough to see it.
	authed.HandleFunc("/rules", s.listRules).Methods("GET")

	s.guarded(authed, "GET", "/roles", s.listRoles,
		rbac.OperationView, rbac.ResourceRole, rbac.ScopeOwn)
	s.guarded(authed, "POST", "/roles", s.createRole,
		rbac.OperationCreate, rbac.ResourceRole, rbac.ScopeOwn)
	s.guarded(authed, "GET", "/roles/{id}", s.getRole,
		rbac.OperationView, rbac.ResourceRole, rbac.ScopeOwn)
	s.guarded(authed, "GET", "/roles/{id}/matrix", s.roleMatrix,
		rbac.OperationView, rbac.ResourceRole, rbac.ScopeOwn)
	s.guarded(authed, "PUT", "/roles/{id}/rules", s.setRoleRules,
		rbac.OperationEdit, rbac.ResourceRole, rbac.ScopeOwn)

	s.guarded(authed, "GET", "/users/{id}", s.getUser,
		rbac.OperationView, rbac.ResourceUser, rbac.ScopeOwn)
	s.guarded(authed, "GET", "/users/{id}/matrix", s.userMatrix,
		rbac.OperationView, rbac.ResourceUser, rbac.ScopeOwn)
	s.guarded(authed, "PUT", "/users/{id}/rules", s.setUserRules,
		rbac.OperationEdit, rbac.ResourceUser, rbac.ScopeOwn)

	s.guarded(authed, "GET", "/organizations", s.listOrganizations,
		rbac.OperationView, rbac.ResourceOrganization, rbac.ScopeOwn)

	// Instance-level check: viewing a concrete organization needs the
	// permission against that organization, not just any scope.
	orgView := s.guard.RequireOrganization(rbac.OperationView, rbac.ResourceOrganization, "org_id")
	authed.Handle("/organizations/{org_id}", orgView(http.HandlerFunc(s.getOrganization))).
		Methods("GET").Name(policyRouteName("GET", "/organizations/{org_id}"))
	s.guarded(authed, "GET", "/collaborations", s.listCollaborations,
		rbac.OperationView, rbac.ResourceCollaboration, rbac.ScopeOwn)
	s.guarded(authed, "GET", "/nodes", s.listNodes,
		rbac.OperationView, rbac.ResourceNode, rbac.ScopeOwn)
	s.guarded(authed, "GET", "/tasks", s.listTasks,
		rbac.OperationView, rbac.ResourceTask, rbac.ScopeOwn)

	if s.recent != nil {
		s.guarded(authed, "GET", "/audit", s.listAudit,
			rbac.OperationView, rbac.ResourceUser, rbac.ScopeGlobal)
	}
}

// guarded registers a route behind a permission requirement. When a route
// policy is configured and names the route, the policy requirement wins so
// operators can tighten routes at runtime. The policy is consulted per
// request, so a reloaded file can claim or release a route without a
// restart.
func (s *Server) guarded(r *mux.Router, method, path string, h http.HandlerFunc,
	op rbac.Operation, res rbac.Resource, minScope rbac.Scope) {

	name := policyRouteName(method, path)
	static := s.guard.Require(op, res, minScope)(h)

	var handler http.Handler = static
	if s.policy != nil {
		policied := s.policy.Require(name)(h)
		handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if _, ok := s.policy.Lookup(name); ok {
				policied.ServeHTTP(w, req)
				return
			}
			static.ServeHTTP(w, req)
		})
	}
	r.Handle(path, handler).Methods(method).Name(name)
}

// policyRouteName derives the policy route name, e.g. "GET /roles" becomes
// "get-roles".
func policyRouteName(method, path string) string {
	name := method + path
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			out = append(out, r)
		case len(out) > 0 && out[len(out)-1] != '-':
			out = append(out, '-')
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}

func (s *Server) countLogin(method, status string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(method, status).Inc()
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying mux, mainly for wrapping with middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}
