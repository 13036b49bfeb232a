package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/guard"
	"github.com/nodusnet/console/pkg/matrix"
	"github.com/nodusnet/console/pkg/session"
	"github.com/nodusnet/console/pkg/upstream"
)

func wireRule(id int64, op, resource, scope string) map[string]interface{} {
	return map[string]interface{}{"id": id, "operation": op, "name": resource, "scope": scope}
}

// testCatalog is the rule catalog every stub serves.
var testCatalog = []map[string]interface{}{
	wireRule(1, "view", "node", "own"),
	wireRule(2, "view", "node", "global"),
	wireRule(3, "view", "role", "global"),
	wireRule(4, "edit", "role", "global"),
	wireRule(5, "create", "role", "global"),
	wireRule(6, "view", "user", "global"),
	wireRule(7, "edit", "user", "global"),
	wireRule(8, "view", "organization", "global"),
	wireRule(9, "view", "organization", "organization"),
}

// platformStub fakes the platform API behind the console.
type platformStub struct {
	mu sync.Mutex

	// rules the logging-in user holds directly
	currentRules []map[string]interface{}

	roles map[int64]map[string]interface{}
	users map[int64]map[string]interface{}

	rolePatches []json.RawMessage
	userPatches []json.RawMessage
}

func newPlatformStub(currentRules ...map[string]interface{}) *platformStub {
	return &platformStub{
		currentRules: currentRules,
		roles:        make(map[int64]map[string]interface{}),
		users:        make(map[int64]map[string]interface{}),
	}
}

func envelope(records interface{}) map[string]interface{} {
	return map[string]interface{}{"data": records, "links": map[string]string{}}
}

func (p *platformStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()

		path, method := r.URL.Path, r.Method
		switch {
		case method == http.MethodPost && path == "/api/token/user":
			var creds map[string]string
			json.NewDecoder(r.Body).Decode(&creds)
			if creds["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"msg": "invalid credentials"})
				return
			}
			json.NewEncoder(w).Encode(upstream.Token{AccessToken: "at", UserID: 7})

		case method == http.MethodGet && path == "/api/rule":
			json.NewEncoder(w).Encode(envelope(testCatalog))

		case method == http.MethodGet && path == "/api/user/current":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": 7, "username": "alice", "organization_id": 3,
				"rules": p.currentRules,
			})

		case method == http.MethodGet && path == "/api/role":
			var records []map[string]interface{}
			for _, role := range p.roles {
				records = append(records, role)
			}
			json.NewEncoder(w).Encode(envelope(records))

		case method == http.MethodPost && path == "/api/role":
			body, _ := readBody(r)
			p.rolePatches = append(p.rolePatches, body)
			var spec struct {
				Name  string  `json:"name"`
				Rules []int64 `json:"rules"`
			}
			json.Unmarshal(body, &spec)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": 99, "name": spec.Name, "rules": catalogByIDs(spec.Rules),
			})

		case strings.HasPrefix(path, "/api/role/"):
			id := pathID(path, "/api/role/")
			role, ok := p.roles[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"msg": "role not found"})
				return
			}
			if method == http.MethodPatch {
				body, _ := readBody(r)
				p.rolePatches = append(p.rolePatches, body)
				var spec struct {
					Rules []int64 `json:"rules"`
				}
				json.Unmarshal(body, &spec)
				role["rules"] = catalogByIDs(spec.Rules)
			}
			json.NewEncoder(w).Encode(role)

		case strings.HasPrefix(path, "/api/user/"):
			id := pathID(path, "/api/user/")
			user, ok := p.users[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"msg": "user not found"})
				return
			}
			if method == http.MethodPatch {
				body, _ := readBody(r)
				p.userPatches = append(p.userPatches, body)
			}
			json.NewEncoder(w).Encode(user)

		case method == http.MethodGet && path == "/api/organization":
			json.NewEncoder(w).Encode(envelope([]map[string]interface{}{
				{"id": 3, "name": "acme"},
			}))

		case method == http.MethodGet && path == "/api/node":
			json.NewEncoder(w).Encode(envelope([]map[string]interface{}{
				{"id": 11, "name": "node-a", "organization_id": 3},
			}))

		case method == http.MethodGet && (path == "/api/collaboration" || path == "/api/task"):
			json.NewEncoder(w).Encode(envelope([]map[string]interface{}{}))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func readBody(r *http.Request) (json.RawMessage, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r.Body)
	return buf.Bytes(), err
}

func pathID(path, prefix string) int64 {
	var id int64
	for _, c := range strings.TrimPrefix(path, prefix) {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

func catalogByIDs(ids []int64) []map[string]interface{} {
	var out []map[string]interface{}
	for _, id := range ids {
		for _, rec := range testCatalog {
			if rec["id"].(int64) == id {
				out = append(out, rec)
			}
		}
	}
	return out
}

func newTestServer(t *testing.T, stub *platformStub, opts ...ServerOption) *Server {
	t.Helper()
	ts := stub.server(t)
	t.Cleanup(ts.Close)

	client, err := upstream.NewClient(ts.URL)
	require.NoError(t, err)
	mgr := session.NewManager(client, session.NewMemoryStore())
	t.Cleanup(mgr.Close)

	return NewServer(mgr, guard.New(mgr), opts...)
}

// login posts credentials and returns the session cookie.
func login(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"alice","password":"secret"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == guard.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie in login response")
	return nil
}

func do(srv *Server, method, path string, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestLoginAndWhoami(t *testing.T) {
	stub := newPlatformStub(wireRule(2, "view", "node", "global"))
	srv := newTestServer(t, stub)

	cookie := login(t, srv)
	w := do(srv, http.MethodGet, "/api/whoami", cookie, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Ready bool `json:"ready"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.User.Username)
	assert.True(t, resp.Ready)
}

func TestLoginFailureIsAudited(t *testing.T) {
	recent := audit.NewMemoryLogger(16)
	srv := newTestServer(t, newPlatformStub(), WithAudit(recent))

	w := do(srv, http.MethodPost, "/api/login", nil, `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	events := recent.Search(audit.Filter{EventTypes: []audit.EventType{audit.EventTypeAuthLoginFailed}})
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventStatusFailure, events[0].Status)
}

func TestLogoutEndsSession(t *testing.T) {
	srv := newTestServer(t, newPlatformStub(wireRule(1, "view", "node", "own")))

	cookie := login(t, srv)
	w := do(srv, http.MethodPost, "/api/logout", cookie, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(srv, http.MethodGet, "/api/whoami", cookie, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnauthenticatedRequestsDenied(t *testing.T) {
	srv := newTestServer(t, newPlatformStub())

	for _, path := range []string{"/api/whoami", "/api/rules", "/api/roles", "/api/nodes"} {
		w := do(srv, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestGuardDeniesMissingPermission(t *testing.T) {
	// Only view node own: organizations and roles are off limits.
	stub := newPlatformStub(wireRule(1, "view", "node", "own"))
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodGet, "/api/organizations", cookie, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(srv, http.MethodGet, "/api/roles", cookie, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(srv, http.MethodGet, "/api/nodes", cookie, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListRulesGrouped(t *testing.T) {
	stub := newPlatformStub(wireRule(1, "view", "node", "own"))
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodGet, "/api/rules?grouped=true", cookie, "")
	require.Equal(t, http.StatusOK, w.Code)

	var groups []struct {
		Resource string `json:"resource"`
		Scope    string `json:"scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &groups))
	assert.NotEmpty(t, groups)
}

func TestRoleMatrix(t *testing.T) {
	stub := newPlatformStub(
		wireRule(3, "view", "role", "global"),
		wireRule(4, "edit", "role", "global"),
	)
	stub.roles[10] = map[string]interface{}{
		"id": 10, "name": "auditor",
		"rules": []map[string]interface{}{wireRule(3, "view", "role", "global")},
	}
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodGet, "/api/roles/10/matrix", cookie, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Rows  []matrix.Row `json:"rows"`
		Rules []struct {
			ID int64 `json:"id"`
		} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Rules, 1)
	assert.Equal(t, int64(3), resp.Rules[0].ID)

	// The session holds rules 3 and 4, so the role-global row must show
	// view selected and edit selectable.
	var found bool
	for _, row := range resp.Rows {
		if row.Resource != "role" || row.Scope != "global" {
			continue
		}
		found = true
		states := make(map[string]matrix.CellState)
		for _, cell := range row.Cells {
			states[string(cell.Operation)] = cell.State
		}
		assert.Equal(t, matrix.CellSelected, states["view"])
		assert.Equal(t, matrix.CellNotSelected, states["edit"])
	}
	assert.True(t, found, "no role/global row in matrix")
}

func TestSetRoleRulesDeniesEscalation(t *testing.T) {
	// Session can view roles and edit them, but does not hold rule 2
	// (view node global), so it must not be able to grant it.
	stub := newPlatformStub(
		wireRule(3, "view", "role", "global"),
		wireRule(4, "edit", "role", "global"),
	)
	stub.roles[10] = map[string]interface{}{
		"id": 10, "name": "auditor",
		"rules": []map[string]interface{}{wireRule(3, "view", "role", "global")},
	}
	recent := audit.NewMemoryLogger(16)
	srv := newTestServer(t, stub, WithAudit(recent))
	cookie := login(t, srv)

	w := do(srv, http.MethodPut, "/api/roles/10/rules", cookie, `{"rules":[3,2]}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, stub.rolePatches)

	events := recent.Search(audit.Filter{Status: audit.EventStatusDenied})
	require.NotEmpty(t, events)
	assert.Equal(t, audit.EventTypeRoleRulesChange, events[0].EventType)
}

func TestSetRoleRulesDeniesRevokingUnheld(t *testing.T) {
	// Removing a rule the session could not grant is also refused.
	stub := newPlatformStub(
		wireRule(3, "view", "role", "global"),
		wireRule(4, "edit", "role", "global"),
	)
	stub.roles[10] = map[string]interface{}{
		"id": 10, "name": "operator",
		"rules": []map[string]interface{}{
			wireRule(3, "view", "role", "global"),
			wireRule(2, "view", "node", "global"),
		},
	}
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodPut, "/api/roles/10/rules", cookie, `{"rules":[3]}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, stub.rolePatches)
}

func TestSetRoleRulesSucceeds(t *testing.T) {
	stub := newPlatformStub(
		wireRule(3, "view", "role", "global"),
		wireRule(4, "edit", "role", "global"),
	)
	stub.roles[10] = map[string]interface{}{
		"id": 10, "name": "auditor",
		"rules": []map[string]interface{}{wireRule(3, "view", "role", "global")},
	}
	recent := audit.NewMemoryLogger(16)
	srv := newTestServer(t, stub, WithAudit(recent))
	cookie := login(t, srv)

	w := do(srv, http.MethodPut, "/api/roles/10/rules", cookie, `{"rules":[3,4]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, stub.rolePatches, 1)
	assert.Contains(t, string(stub.rolePatches[0]), `"rules":[3,4]`)

	events := recent.Search(audit.Filter{EventTypes: []audit.EventType{audit.EventTypeRoleRulesChange}})
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventStatusSuccess, events[0].Status)
}

func TestSetRoleRulesRejectsReservedRole(t *testing.T) {
	stub := newPlatformStub(
		wireRule(3, "view", "role", "global"),
		wireRule(4, "edit", "role", "global"),
	)
	stub.roles[10] = map[string]interface{}{
		"id": 10, "name": "node",
		"rules": []map[string]interface{}{},
	}
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodPut, "/api/roles/10/rules", cookie, `{"rules":[3]}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, stub.rolePatches)
}

func TestCreateRoleRejectsReservedName(t *testing.T) {
	stub := newPlatformStub(
		wireRule(3, "view", "role", "global"),
		wireRule(5, "create", "role", "global"),
	)
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodPost, "/api/roles", cookie, `{"name":"container","rules":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRole(t *testing.T) {
	stub := newPlatformStub(
		wireRule(3, "view", "role", "global"),
		wireRule(5, "create", "role", "global"),
	)
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodPost, "/api/roles", cookie, `{"name":"viewer","rules":[3]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "viewer", created.Name)
}

func TestCreateRoleUnknownRule(t *testing.T) {
	stub := newPlatformStub(wireRule(5, "create", "role", "global"))
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodPost, "/api/roles", cookie, `{"name":"viewer","rules":[404]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserMatrixFixesRoleRules(t *testing.T) {
	stub := newPlatformStub(
		wireRule(2, "view", "node", "global"),
		wireRule(6, "view", "user", "global"),
		wireRule(7, "edit", "user", "global"),
	)
	stub.users[9] = map[string]interface{}{
		"id": 9, "username": "bob", "organization_id": 3,
		"rules": []map[string]interface{}{},
		"roles": []map[string]interface{}{
			{
				"id": 20, "name": "watcher",
				"rules": []map[string]interface{}{wireRule(2, "view", "node", "global")},
			},
		},
	}
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodGet, "/api/users/9/matrix", cookie, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Rows []matrix.Row `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	var state matrix.CellState
	for _, row := range resp.Rows {
		if row.Resource != "node" || row.Scope != "global" {
			continue
		}
		for _, cell := range row.Cells {
			if cell.Operation == "view" {
				state = cell.State
			}
		}
	}
	// Granted through a role: shown but not editable here.
	assert.Equal(t, matrix.CellFixedSelected, state)
}

func TestSetUserRulesDeniedWhenTargetExceedsSession(t *testing.T) {
	// The target holds view node global, which the session does not.
	stub := newPlatformStub(
		wireRule(6, "view", "user", "global"),
		wireRule(7, "edit", "user", "global"),
	)
	stub.users[9] = map[string]interface{}{
		"id": 9, "username": "bob", "organization_id": 3,
		"rules": []map[string]interface{}{wireRule(2, "view", "node", "global")},
		"roles": []map[string]interface{}{},
	}
	recent := audit.NewMemoryLogger(16)
	srv := newTestServer(t, stub, WithAudit(recent))
	cookie := login(t, srv)

	w := do(srv, http.MethodPut, "/api/users/9/rules", cookie, `{"roles":[],"rules":[]}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, stub.userPatches)

	events := recent.Search(audit.Filter{Status: audit.EventStatusDenied})
	require.NotEmpty(t, events)
}

func TestSetUserRulesSucceeds(t *testing.T) {
	stub := newPlatformStub(
		wireRule(2, "view", "node", "global"),
		wireRule(6, "view", "user", "global"),
		wireRule(7, "edit", "user", "global"),
	)
	stub.users[9] = map[string]interface{}{
		"id": 9, "username": "bob", "organization_id": 3,
		"rules": []map[string]interface{}{},
		"roles": []map[string]interface{}{},
	}
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodPut, "/api/users/9/rules", cookie, `{"roles":[],"rules":[2]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, stub.userPatches, 1)
	assert.Contains(t, string(stub.userPatches[0]), `"rules":[2]`)
}

func TestListAuditRequiresGlobalUserView(t *testing.T) {
	recent := audit.NewMemoryLogger(16)

	limited := newPlatformStub(wireRule(1, "view", "node", "own"))
	srv := newTestServer(t, limited, WithAudit(recent), WithRecentEvents(recent))
	cookie := login(t, srv)
	w := do(srv, http.MethodGet, "/api/audit", cookie, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := newPlatformStub(wireRule(6, "view", "user", "global"))
	srv = newTestServer(t, admin, WithAudit(recent), WithRecentEvents(recent))
	cookie = login(t, srv)
	w = do(srv, http.MethodGet, "/api/audit", cookie, "")
	require.Equal(t, http.StatusOK, w.Code)

	var events []audit.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.NotEmpty(t, events)
}

func TestPolicyOverridesStaticRequirement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	policy := "routes:\n" +
		"  - name: get-nodes\n" +
		"    operation: view\n" +
		"    resource: node\n" +
		"    scope: global\n"
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

	stub := newPlatformStub(wireRule(1, "view", "node", "own"))
	ts := stub.server(t)
	t.Cleanup(ts.Close)

	client, err := upstream.NewClient(ts.URL)
	require.NoError(t, err)
	mgr := session.NewManager(client, session.NewMemoryStore())
	t.Cleanup(mgr.Close)

	g := guard.New(mgr)
	pg, err := guard.NewPolicyGuard(g, path)
	require.NoError(t, err)

	srv := NewServer(mgr, g, WithPolicy(pg))
	cookie := login(t, srv)

	// Statically nodes only needs view node own; the policy tightens it
	// to global scope, which this session does not hold.
	w := do(srv, http.MethodGet, "/api/nodes", cookie, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPolicyReloadClaimsRoute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	// The initial policy names an unrelated route only; nodes fall back
	// to the static requirement.
	initial := "routes:\n" +
		"  - name: get-roles\n" +
		"    operation: view\n" +
		"    resource: role\n" +
		"    scope: global\n"
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	stub := newPlatformStub(wireRule(1, "view", "node", "own"))
	ts := stub.server(t)
	t.Cleanup(ts.Close)

	client, err := upstream.NewClient(ts.URL)
	require.NoError(t, err)
	mgr := session.NewManager(client, session.NewMemoryStore())
	t.Cleanup(mgr.Close)

	g := guard.New(mgr)
	pg, err := guard.NewPolicyGuard(g, path)
	require.NoError(t, err)

	srv := NewServer(mgr, g, WithPolicy(pg))
	cookie := login(t, srv)

	w := do(srv, http.MethodGet, "/api/nodes", cookie, "")
	require.Equal(t, http.StatusOK, w.Code, "static requirement should allow before the reload")

	// An operator tightens nodes to global scope at runtime.
	tightened := initial +
		"  - name: get-nodes\n" +
		"    operation: view\n" +
		"    resource: node\n" +
		"    scope: global\n"
	require.NoError(t, os.WriteFile(path, []byte(tightened), 0o600))
	require.NoError(t, pg.Reload())

	w = do(srv, http.MethodGet, "/api/nodes", cookie, "")
	assert.Equal(t, http.StatusForbidden, w.Code, "reloaded policy must take over the route")
}

func TestGetOrganizationOwnScope(t *testing.T) {
	stub := newPlatformStub(wireRule(9, "view", "organization", "organization"))
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	// alice belongs to organization 3.
	w := do(srv, http.MethodGet, "/api/organizations/3", cookie, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(srv, http.MethodGet, "/api/organizations/4", cookie, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetOrganizationGlobalScope(t *testing.T) {
	stub := newPlatformStub(wireRule(8, "view", "organization", "global"))
	srv := newTestServer(t, stub)
	cookie := login(t, srv)

	w := do(srv, http.MethodGet, "/api/organizations/3", cookie, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(srv, http.MethodGet, "/api/organizations/99", cookie, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPolicyRouteNames(t *testing.T) {
	assert.Equal(t, "get-roles", policyRouteName("GET", "/roles"))
	assert.Equal(t, "put-roles-id-rules", policyRouteName("PUT", "/roles/{id}/rules"))
	assert.Equal(t, "get-users-id-matrix", policyRouteName("GET", "/users/{id}/matrix"))
}
