package api

import (
	"net/http"

	"github.com/nodusnet/console/pkg/contextkeys"
	"github.com/nodusnet/console/pkg/httputil"
	"github.com/nodusnet/console/pkg/rbac"
	"github.com/nodusnet/console/pkg/session"
)

// store returns the permission store for the authenticated request.
func (s *Server) store(w http.ResponseWriter, r *http.Request) (*rbac.PermissionStore, *session.Session, bool) {
	sess := contextkeys.SessionFrom(r.Context())
	store, ok := s.sessions.Permissions(sess.ID)
	if !ok {
		httputil.WriteUnauthorized(w, "session has no permission store")
		return nil, nil, false
	}
	return store, sess, true
}

// listRules handles GET /api/rules. With ?grouped=true the catalog is
// grouped by (resource, scope) the way the matrix editor lays it out.
func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	store, _, ok := s.store(w, r)
	if !ok {
		return
	}

	grouped, err := httputil.ParseQueryBool(r, "grouped", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	catalog := store.Catalog()
	if grouped {
		httputil.WriteSuccess(w, rbac.GroupCatalog(catalog))
		return
	}
	httputil.WriteSuccess(w, catalog)
}
