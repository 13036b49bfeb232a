package api

import (
	"fmt"
	"net/http"

	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/contextkeys"
	"github.com/nodusnet/console/pkg/httputil"
	"github.com/nodusnet/console/pkg/matrix"
	"github.com/nodusnet/console/pkg/rbac"
)

// getUser handles GET /api/users/{id}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := s.sessions.User(r.Context(), sess.ID, id)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// userMatrix handles GET /api/users/{id}/matrix: the permission grid for
// editing a user's direct rules.
func (s *Server) userMatrix(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())
	store, _, ok := s.store(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := s.sessions.User(r.Context(), sess.ID, id)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	// Rules granted through roles are fixed in the grid: they can only be
	// changed by editing the role itself.
	catalog := store.Catalog()
	editor := matrix.NewEditor(store, catalog, rulesFromRoles(user), user.Rules)
	httputil.WriteSuccess(w, matrixResponse{
		Rows:  editor.Render(catalog),
		Rules: editor.Rules(),
	})
}

// rulesFromRoles flattens the rules a user holds through roles,
// deduplicated by ID.
func rulesFromRoles(user *rbac.User) []rbac.Rule {
	seen := make(map[int64]bool)
	var out []rbac.Rule
	for _, role := range user.Roles {
		for _, rule := range role.Rules {
			if seen[rule.ID] {
				continue
			}
			seen[rule.ID] = true
			out = append(out, rule)
		}
	}
	return out
}

type setUserRulesRequest struct {
	RoleIDs []int64 `json:"roles"`
	RuleIDs []int64 `json:"rules"`
}

// setUserRules handles PUT /api/users/{id}/rules. Editing another user's
// permissions requires that every role and rule the target already holds
// is assignable by the session, so the edit cannot strip or grant anything
// the editor does not command.
func (s *Server) setUserRules(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())
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

	var req setUserRulesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	target, err := s.sessions.User(r.Context(), sess.ID, id)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	if !store.CanModifyRulesOtherUser(target) {
		ev := audit.NewEvent(r.Context(), audit.EventTypeUserRulesChange, audit.EventStatusDenied, "target user not modifiable")
		ev.TargetType = "user"
		ev.TargetID = id
		s.audit.Log(r.Context(), ev)
		httputil.WriteForbidden(w, "cannot modify this user's permissions")
		return
	}

	rules, err := s.resolveRules(store, req.RuleIDs)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if denied, ok := changedUnassignable(store, target.Rules, rules); !ok {
		s.auditDenied(r, audit.EventTypeUserRulesChange, denied)
		httputil.WriteForbidden(w, fmt.Sprintf("cannot change rule %d", denied.ID))
		return
	}

	// Newly assigned roles must be assignable in full.
	currentRoles := make(map[int64]bool, len(target.Roles))
	for _, role := range target.Roles {
		currentRoles[role.ID] = true
	}
	for _, roleID := range req.RoleIDs {
		if currentRoles[roleID] {
			continue
		}
		role, err := client.Role(r.Context(), roleID)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		if !store.CanAssignRole(*role) {
			ev := audit.NewEvent(r.Context(), audit.EventTypeUserRulesChange, audit.EventStatusDenied, "role not assignable")
			ev.TargetType = "role"
			ev.TargetID = roleID
			s.audit.Log(r.Context(), ev)
			httputil.WriteForbidden(w, fmt.Sprintf("cannot assign role %d", roleID))
			return
		}
	}

	updated, err := client.SetUserRules(r.Context(), id, req.RoleIDs, req.RuleIDs)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	ev := audit.NewEvent(r.Context(), audit.EventTypeUserRulesChange, audit.EventStatusSuccess, "user rules changed")
	ev.TargetType = "user"
	ev.TargetID = id
	ev.Details = map[string]interface{}{
		"before_rules": ruleIDs(target.Rules),
		"after_rules":  req.RuleIDs,
		"after_roles":  req.RoleIDs,
	}
	s.audit.Log(r.Context(), ev)

	httputil.WriteSuccess(w, updated)
}
