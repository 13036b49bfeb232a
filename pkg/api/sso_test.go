package api

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodusnet/console/pkg/config"
	"github.com/nodusnet/console/pkg/guard"
	"github.com/nodusnet/console/pkg/session"
	"github.com/nodusnet/console/pkg/upstream"
)

// fakeIdP is a minimal OIDC provider: discovery document, a JWKS with one
// RSA key, and a token endpoint that always issues a signed ID token.
type fakeIdP struct {
	key    *rsa.PrivateKey
	issuer string
	srv    *httptest.Server
}

func newFakeIdP(t *testing.T, clientID string) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idp := &fakeIdP{key: key}

	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 idp.issuer,
			"authorization_endpoint": idp.issuer + "/auth",
			"token_endpoint":         idp.issuer + "/token",
			"jwks_uri":               idp.issuer + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	handler.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]interface{}{{
				"kty": "RSA", "alg": "RS256", "use": "sig", "kid": "test",
				"n": base64.RawURLEncoding.EncodeToString(idp.key.N.Bytes()),
				"e": base64.RawURLEncoding.EncodeToString([]byte{1, 0, 1}),
			}},
		})
	})
	handler.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "idp-access-token",
			"token_type":   "bearer",
			"id_token":     idp.signIDToken(t, clientID),
		})
	})

	idp.srv = httptest.NewServer(handler)
	idp.issuer = idp.srv.URL
	t.Cleanup(idp.srv.Close)
	return idp
}

func (idp *fakeIdP) signIDToken(t *testing.T, audience string) string {
	t.Helper()

	claims, err := json.Marshal(map[string]interface{}{
		"iss":                idp.issuer,
		"aud":                audience,
		"sub":                "alice",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"iat":                time.Now().Unix(),
		"email":              "alice@example.com",
		"preferred_username": "alice",
	})
	require.NoError(t, err)

	signing := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","kid":"test"}`)) +
		"." + base64.RawURLEncoding.EncodeToString(claims)
	digest := sha256.Sum256([]byte(signing))
	sig, err := rsa.SignPKCS1v15(rand.Reader, idp.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signing + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func newSSOTestServer(t *testing.T, stub *platformStub) *Server {
	t.Helper()

	ts := stub.server(t)
	t.Cleanup(ts.Close)
	client, err := upstream.NewClient(ts.URL)
	require.NoError(t, err)
	mgr := session.NewManager(client, session.NewMemoryStore())
	t.Cleanup(mgr.Close)

	idp := newFakeIdP(t, "console")
	sso, err := NewSSOHandlers(context.Background(), mgr, config.SSOConfig{
		Enabled:      true,
		IssuerURL:    idp.issuer,
		ClientID:     "console",
		ClientSecret: "shh",
		RedirectURL:  "http://console.local/api/sso/callback",
	}, nil, nil)
	require.NoError(t, err)

	return NewServer(mgr, guard.New(mgr), WithSSO(sso))
}

func TestSSOLoginFlow(t *testing.T) {
	stub := newPlatformStub(wireRule(2, "view", "node", "global"))
	srv := newSSOTestServer(t, stub)

	// Initiate: redirected to the IdP with a state cookie pinned.
	w := do(srv, http.MethodGet, "/api/sso/login", nil, "")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Result().Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == ssoStateCookie {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie, "no state cookie set")

	// Callback: code exchange against the fake IdP, then a real session.
	req := httptest.NewRequest(http.MethodGet, "/api/sso/callback?state="+url.QueryEscape(state)+"&code=xyz", nil)
	req.AddCookie(stateCookie)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == guard.SessionCookie {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "no session cookie set")

	w = do(srv, http.MethodGet, "/api/whoami", sessionCookie, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(srv, http.MethodGet, "/api/nodes", sessionCookie, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSSOCallbackStateMismatch(t *testing.T) {
	stub := newPlatformStub()
	srv := newSSOTestServer(t, stub)

	w := do(srv, http.MethodGet, "/api/sso/login", nil, "")
	require.Equal(t, http.StatusFound, w.Code)
	var stateCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == ssoStateCookie {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie)

	req := httptest.NewRequest(http.MethodGet, "/api/sso/callback?state=forged&code=xyz", nil)
	req.AddCookie(stateCookie)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSOCallbackWithoutCookie(t *testing.T) {
	stub := newPlatformStub()
	srv := newSSOTestServer(t, stub)

	w := do(srv, http.MethodGet, "/api/sso/callback?state=abc&code=xyz", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
