package server

import (
	"net/http"
	"time"

	"github.com/draganm/inviteflow/flow"
	"github.com/draganm/inviteflow/session"
)

type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	var err error

	defer func() {
		handleHttpError(w, err, s.log)
	}()

	// without provider settings sessions are reported but never refreshed
	var refresher session.Refresher
	if idp, perr := s.providers.Public(); perr == nil {
		refresher = idp
	}

	sess, err := s.sessions.Current(r.Context(), r, refresher)
	if err != nil {
		return
	}

	if sess == nil {
		writeJSON(w, http.StatusOK, SessionResponse{})
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		UserID:        sess.UserID,
		Email:         sess.Email,
		ExpiresAt:     &sess.ExpiresAt,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Clear(r.Context(), w, r)
	if err != nil {
		s.log.Error(err, "while clearing session")
	}
	http.Redirect(w, r, flow.LoginPath, http.StatusSeeOther)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
