package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/contextkeys"
	"github.com/nodusnet/console/pkg/httputil"
	"github.com/nodusnet/console/pkg/matrix"
	"github.com/nodusnet/console/pkg/rbac"
	"github.com/nodusnet/console/pkg/session"
	"github.com/nodusnet/console/pkg/upstream"
)

// client returns the token-bound platform client for the request's session.
func (s *Server) client(w http.ResponseWriter, r *http.Request) (*upstream.Client, *session.Session, bool) {
	sess := contextkeys.SessionFrom(r.Context())
	client, ok := s.sessions.Client(sess.ID)
	if !ok {
		httputil.WriteUnauthorized(w, "session has no platform client")
		return nil, nil, false
	}
	return client, sess, true
}

// listRoles handles GET /api/roles with an optional organization_id filter.
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}

	var orgID *int64
	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		id, err := httputil.ParseQueryInt(r, "organization_id", 0)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		v := int64(id)
		orgID = &v
	}

	roles, err := client.Roles(r.Context(), orgID)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// getRole handles GET /api/roles/{id}
func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := client.Role(r.Context(), id)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

type createRoleRequest struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	OrganizationID *int64  `json:"organization_id"`
	RuleIDs        []int64 `json:"rules"`
}

// createRole handles POST /api/roles. A role may only carry rules the
// creating session could assign itself, and reserved role names are
// rejected outright.
func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	store, _, ok := s.store(w, r)
	if !ok {
		return
	}

	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if (rbac.Role{Name: req.Name}).Reserved() {
		httputil.WriteBadRequest(w, fmt.Sprintf("role name %q is reserved", req.Name))
		return
	}

	rules, err := s.resolveRules(store, req.RuleIDs)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	for _, rule := range rules {
		if !store.CanAssignRule(rule) {
			s.auditDenied(r, audit.EventTypeRoleCreate, rule)
			httputil.WriteForbidden(w, fmt.Sprintf("cannot assign rule %d", rule.ID))
			return
		}
	}

	role, err := client.CreateRole(r.Context(), upstream.RoleSpec{
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
		RuleIDs:        req.RuleIDs,
	})
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	ev := audit.NewEvent(r.Context(), audit.EventTypeRoleCreate, audit.EventStatusSuccess, "role created")
	ev.TargetType = "role"
	ev.TargetID = role.ID
	ev.Details = map[string]interface{}{"name": role.Name, "rules": req.RuleIDs}
	s.audit.Log(r.Context(), ev)

	httputil.WriteCreated(w, role)
}

// roleMatrix handles GET /api/roles/{id}/matrix. The grid uses the
// session's own assignable set: cells the session cannot grant render as
// fixed so the frontend shows them disabled.
func (s *Server) roleMatrix(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	store, _, ok := s.store(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := client.Role(r.Context(), id)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	catalog := store.Catalog()
	editor := matrix.NewEditor(store, catalog, nil, role.Rules)
	httputil.WriteSuccess(w, matrixResponse{
		Rows:  editor.Render(catalog),
		Rules: editor.Rules(),
	})
}

type matrixResponse struct {
	Rows  []matrix.Row `json:"rows"`
	Rules []rbac.Rule  `json:"rules"`
}

type setRulesRequest struct {
	RuleIDs []int64 `json:"rules"`
}

// setRoleRules handles PUT /api/roles/{id}/rules. Every rule added to or
// removed from the role must be assignable by the session: permissions one
// cannot grant cannot be revoked either.
func (s *Server) setRoleRules(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.client(w, r)
	if !ok {
		return
	}
	store, _, ok := s.store(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req setRulesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := client.Role(r.Context(), id)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	if role.Reserved() {
		httputil.WriteForbidden(w, fmt.Sprintf("role %q is reserved", role.Name))
		return
	}

	target, err := s.resolveRules(store, req.RuleIDs)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if denied, ok := changedUnassignable(store, role.Rules, target); !ok {
		s.auditDenied(r, audit.EventTypeRoleRulesChange, denied)
		httputil.WriteForbidden(w, fmt.Sprintf("cannot change rule %d", denied.ID))
		return
	}

	updated, err := client.UpdateRole(r.Context(), id, upstream.RoleSpec{
		Name:           role.Name,
		Description:    role.Description,
		OrganizationID: role.OrganizationID,
		RuleIDs:        req.RuleIDs,
	})
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	ev := audit.NewEvent(r.Context(), audit.EventTypeRoleRulesChange, audit.EventStatusSuccess, "role rules changed")
	ev.TargetType = "role"
	ev.TargetID = id
	ev.Details = map[string]interface{}{
		"before": ruleIDs(role.Rules),
		"after":  req.RuleIDs,
	}
	s.audit.Log(r.Context(), ev)

	httputil.WriteSuccess(w, updated)
}

// resolveRules maps rule IDs to catalog rules, rejecting unknown IDs.
func (s *Server) resolveRules(store *rbac.PermissionStore, ids []int64) ([]rbac.Rule, error) {
	byID := make(map[int64]rbac.Rule)
	for _, rule := range store.Catalog() {
		byID[rule.ID] = rule
	}
	out := make([]rbac.Rule, 0, len(ids))
	for _, id := range ids {
		rule, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown rule ID %d", id)
		}
		out = append(out, rule)
	}
	return out, nil
}

// changedUnassignable diffs current against target by rule ID and returns
// the first changed rule the store cannot assign.
func changedUnassignable(store *rbac.PermissionStore, current, target []rbac.Rule) (rbac.Rule, bool) {
	currentIDs := make(map[int64]bool, len(current))
	for _, rule := range current {
		currentIDs[rule.ID] = true
	}
	targetIDs := make(map[int64]bool, len(target))
	for _, rule := range target {
		targetIDs[rule.ID] = true
	}

	for _, rule := range target {
		if !currentIDs[rule.ID] && !store.CanAssignRule(rule) {
			return rule, false
		}
	}
	for _, rule := range current {
		if !targetIDs[rule.ID] && !store.CanAssignRule(rule) {
			return rule, false
		}
	}
	return rbac.Rule{}, true
}

func ruleIDs(rules []rbac.Rule) []int64 {
	ids := make([]int64, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}
	return ids
}

func (s *Server) auditDenied(r *http.Request, eventType audit.EventType, rule rbac.Rule) {
	ev := audit.NewEvent(r.Context(), eventType, audit.EventStatusDenied, "rule not assignable")
	ev.TargetType = "rule"
	ev.TargetID = rule.ID
	s.audit.Log(r.Context(), ev)
}

// writeUpstreamError maps platform API errors onto the console response.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		httputil.WriteErrorMessage(w, apiErr.StatusCode, apiErr.Message)
		return
	}
	httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
}
