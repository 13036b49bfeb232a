package api

import (
	"net/http"

	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/httputil"
)

// listOrganizations handles GET /api/organizations
func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	orgs, err := client.Organizations(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httputil.WriteSuccess(w, orgs)
}

// getOrganization handles GET /api/organizations/{org_id}
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	orgs, err := client.Organizations(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	for _, org := range orgs {
		if org.ID == id {
			httputil.WriteSuccess(w, org)
			return
		}
	}
	httputil.WriteNotFound(w, "organization not found")
}

// listCollaborations handles GET /api/collaborations
func (s *Server) listCollaborations(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	collabs, err := client.Collaborations(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httputil.WriteSuccess(w, collabs)
}

// listNodes handles GET /api/nodes
func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	nodes, err := client.Nodes(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httputil.WriteSuccess(w, nodes)
}

// listTasks handles GET /api/tasks
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	tasks, err := client.Tasks(r.Context())
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httputil.WriteSuccess(w, tasks)
}

// listAudit handles GET /api/audit, serving the in-memory ring of recent
// events newest first.
func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := audit.Filter{Limit: limit}
	if raw := httputil.ParseQueryString(r, "type", ""); raw != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(raw)}
	}
	if userID, err := httputil.ParseQueryInt(r, "user_id", 0); err == nil && userID != 0 {
		filter.UserID = int64(userID)
	}

	httputil.WriteSuccess(w, s.recent.Search(filter))
}
