package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/config"
	"github.com/nodusnet/console/pkg/httputil"
	"github.com/nodusnet/console/pkg/observability"
	"github.com/nodusnet/console/pkg/session"
	"github.com/nodusnet/console/pkg/upstream"
)

const ssoStateCookie = "console_sso_state"

// SSOHandlers implements OIDC single sign-on. The IdP access token doubles
// as the platform token: the session manager validates it against the
// platform before any session exists, so a token the platform rejects never
// becomes a session.
type SSOHandlers struct {
	sessions     *session.Manager
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	audit        audit.Logger
	metrics      *observability.Metrics
	log          *observability.Logger
}

// NewSSOHandlers discovers the OIDC provider and prepares the login flow.
func NewSSOHandlers(ctx context.Context, sessions *session.Manager, cfg config.SSOConfig, auditLog audit.Logger, log *observability.Logger) (*SSOHandlers, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	if auditLog == nil {
		auditLog = audit.NopLogger()
	}
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &SSOHandlers{
		sessions: sessions,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		audit: auditLog,
		log:   log,
	}, nil
}

// RegisterRoutes registers the SSO endpoints on the API router. Both are
// unauthenticated since they establish the session themselves.
func (h *SSOHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sso/login", h.InitiateLogin).Methods(http.MethodGet)
	router.HandleFunc("/sso/callback", h.HandleCallback).Methods(http.MethodGet)
}

// InitiateLogin handles GET /api/sso/login
func (h *SSOHandlers) InitiateLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     ssoStateCookie,
		Value:    state,
		Path:     "/api/sso",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth2Config.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback handles GET /api/sso/callback
func (h *SSOHandlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(ssoStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		httputil.WriteBadRequest(w, "state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	oauth2Token, err := h.oauth2Config.Exchange(r.Context(), code)
	if err != nil {
		h.log.WithError(err).Warn("SSO code exchange failed")
		httputil.WriteUnauthorized(w, "token exchange failed")
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		httputil.WriteUnauthorized(w, "missing id_token in response")
		return
	}

	idToken, err := h.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		h.log.WithError(err).Warn("SSO ID token verification failed")
		httputil.WriteUnauthorized(w, "invalid ID token")
		return
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		httputil.WriteUnauthorized(w, "failed to parse claims")
		return
	}

	sess, err := h.sessions.LoginWithToken(r.Context(), &upstream.Token{
		AccessToken: oauth2Token.AccessToken,
		TokenType:   oauth2Token.TokenType,
	})
	if err != nil {
		ev := audit.NewEvent(r.Context(), audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, err.Error())
		ev.Username = claims.PreferredUsername
		h.audit.Log(r.Context(), ev)
		h.countLogin("failure")
		httputil.WriteUnauthorized(w, "platform rejected SSO token")
		return
	}
	h.countLogin("success")

	ev := audit.NewEvent(r.Context(), audit.EventTypeAuthSSOLogin, audit.EventStatusSuccess, "sso login")
	ev.SessionID = sess.ID
	ev.UserID = sess.UserID
	ev.Username = sess.Username
	h.audit.Log(r.Context(), ev)

	setSessionCookie(w, sess)
	httputil.WriteSuccess(w, loginResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Username:  sess.Username,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *SSOHandlers) countLogin(status string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues("sso", status).Inc()
	}
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
