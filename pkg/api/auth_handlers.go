package api

import (
	"net/http"
	"time"

	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/contextkeys"
	"github.com/nodusnet/console/pkg/guard"
	"github.com/nodusnet/console/pkg/httputil"
	"github.com/nodusnet/console/pkg/rbac"
	"github.com/nodusnet/console/pkg/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// setSessionCookie writes the session cookie the guard reads back.
func setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     guard.SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     guard.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// login handles POST /api/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	sess, err := s.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		ev := audit.NewEvent(r.Context(), audit.EventTypeAuthLoginFailed, audit.EventStatusFailure, err.Error())
		ev.Username = req.Username
		s.audit.Log(r.Context(), ev)
		s.countLogin("password", "failure")
		httputil.WriteUnauthorized(w, "login failed")
		return
	}
	s.countLogin("password", "success")

	ev := audit.NewEvent(r.Context(), audit.EventTypeAuthLogin, audit.EventStatusSuccess, "login")
	ev.SessionID = sess.ID
	ev.UserID = sess.UserID
	ev.Username = sess.Username
	s.audit.Log(r.Context(), ev)

	setSessionCookie(w, sess)
	httputil.WriteSuccess(w, loginResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Username:  sess.Username,
		ExpiresAt: sess.ExpiresAt,
	})
}

// logout handles POST /api/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())

	if err := s.sessions.Logout(r.Context(), sess.ID); err != nil {
		s.log.WithError(err).WithField("session_id", sess.ID).Warn("logout failed")
		httputil.WriteInternalError(w, err)
		return
	}

	s.audit.Log(r.Context(), audit.NewEvent(r.Context(), audit.EventTypeAuthLogout, audit.EventStatusSuccess, "logout"))
	clearSessionCookie(w)
	httputil.WriteNoContent(w)
}

type whoamiResponse struct {
	User           *rbac.User  `json:"user"`
	EffectiveRules []rbac.Rule `json:"effective_rules"`
	Ready          bool        `json:"ready"`
	ExpiresAt      time.Time   `json:"expires_at"`
}

// whoami handles GET /api/whoami
func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())

	store, ok := s.sessions.Permissions(sess.ID)
	if !ok {
		httputil.WriteUnauthorized(w, "session has no permission store")
		return
	}

	httputil.WriteSuccess(w, whoamiResponse{
		User:           store.CurrentUser(),
		EffectiveRules: store.EffectiveRules(),
		Ready:          store.Ready(),
		ExpiresAt:      sess.ExpiresAt,
	})
}
