package guard

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodusnet/console/pkg/rbac"
)

const policyYAML = `
routes:
  - name: list-nodes
    operation: view
    resource: node
    scope: organization
  - name: edit-roles
    operation: edit
    resource: role
    scope: global
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(policyYAML))
	require.NoError(t, err)

	req, ok := p.Lookup("list-nodes")
	require.True(t, ok)
	assert.Equal(t, "view", req.Operation)
	assert.Equal(t, "node", req.Resource)
	assert.Equal(t, "organization", req.Scope)

	_, ok = p.Lookup("unknown")
	assert.False(t, ok)
}

func TestParsePolicyRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad operation": `
routes:
  - name: r
    operation: fly
    resource: node
    scope: own
`,
		"bad resource": `
routes:
  - name: r
    operation: view
    resource: spaceship
    scope: own
`,
		"bad scope": `
routes:
  - name: r
    operation: view
    resource: node
    scope: universe
`,
		"missing name": `
routes:
  - operation: view
    resource: node
    scope: own
`,
		"duplicate name": `
routes:
  - name: r
    operation: view
    resource: node
    scope: own
  - name: r
    operation: edit
    resource: node
    scope: own
`,
		"not yaml": `{{{`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestPolicyGuardRequire(t *testing.T) {
	rule := viewNodeOrg()
	sess := newSession()
	stub := &stubSessions{sess: sess, store: readyStore(t, testUser(rule), rule)}
	g := New(stub)

	path := writePolicy(t, policyYAML)
	pg, err := NewPolicyGuard(g, path)
	require.NoError(t, err)

	allowed := g.Authenticate(pg.Require("list-nodes")(okHandler()))
	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, request(sess.ID))
	assert.Equal(t, http.StatusOK, rec.Code)

	// edit-roles needs global role edit; this session cannot.
	denied := g.Authenticate(pg.Require("edit-roles")(okHandler()))
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, request(sess.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown route names deny.
	unknown := g.Authenticate(pg.Require("no-such-route")(okHandler()))
	rec = httptest.NewRecorder()
	unknown.ServeHTTP(rec, request(sess.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPolicyGuardReload(t *testing.T) {
	rule := viewNodeOrg()
	sess := newSession()
	stub := &stubSessions{sess: sess, store: readyStore(t, testUser(rule), rule)}
	g := New(stub)

	path := writePolicy(t, policyYAML)
	pg, err := NewPolicyGuard(g, path)
	require.NoError(t, err)

	handler := g.Authenticate(pg.Require("list-nodes")(okHandler()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(sess.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	// Tighten the requirement to global and reload.
	tightened := `
routes:
  - name: list-nodes
    operation: view
    resource: node
    scope: global
`
	require.NoError(t, os.WriteFile(path, []byte(tightened), 0o600))
	require.NoError(t, pg.Reload())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, request(sess.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPolicyGuardReloadKeepsOldOnError(t *testing.T) {
	rule := viewNodeOrg()
	sess := newSession()
	stub := &stubSessions{sess: sess, store: readyStore(t, testUser(rule), rule)}
	g := New(stub)

	path := writePolicy(t, policyYAML)
	pg, err := NewPolicyGuard(g, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))
	assert.Error(t, pg.Reload())

	// Previous policy still in effect.
	handler := g.Authenticate(pg.Require("list-nodes")(okHandler()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(sess.ID))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicyScopeParsing(t *testing.T) {
	p, err := ParsePolicy([]byte(policyYAML))
	require.NoError(t, err)

	req, _ := p.Lookup("edit-roles")
	scope, err := rbac.ParseScope(req.Scope)
	require.NoError(t, err)
	assert.Equal(t, rbac.ScopeGlobal, scope)
}
