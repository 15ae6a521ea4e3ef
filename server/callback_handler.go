package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/draganm/inviteflow/flow"
	"github.com/draganm/inviteflow/provider"
	"github.com/gofrs/uuid"
)

const callbackStateCookieName = "inviteflow_callback_state"

// sessionCheck reports whether the request carries a live session. A store
// failure counts as no session.
func (s *Server) sessionCheck(r *http.Request, idp provider.IdentityProvider) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		sess, err := s.sessions.Current(ctx, r, idp)
		if err != nil {
			s.log.Error(err, "while checking session")
			return false, err
		}
		return sess != nil, nil
	}
}

// publicProvider returns the client for browser routes. When the provider is
// not configured the diagnostic page has been written and ok is false.
func (s *Server) publicProvider(w http.ResponseWriter) (provider.IdentityProvider, bool) {
	idp, err := s.providers.Public()
	if err != nil {
		ce := &provider.ConfigurationError{}
		if errors.As(err, &ce) {
			s.log.Error(err, "server is not configured", "missing", ce.Missing)
			s.renderDiagnostic(w, ce.Missing)
			return nil, false
		}
		s.log.Error(err, "could not create identity provider client")
		s.renderDiagnostic(w, nil)
		return nil, false
	}
	return idp, true
}

// callbackPage is where invite and recovery links land. Tokens sit in the
// URL fragment, so unless a session exists the bridge page forwards them.
func (s *Server) callbackPage(w http.ResponseWriter, r *http.Request) {
	idp, ok := s.publicProvider(w)
	if !ok {
		return
	}

	o := flow.Callback{
		Query:      r.URL.Query(),
		HasSession: s.sessionCheck(r, idp),
	}.Resolve(r.Context())

	s.finish(w, r, o, http.StatusFound)
}

func (s *Server) callbackTokens(w http.ResponseWriter, r *http.Request) {
	idp, ok := s.publicProvider(w)
	if !ok {
		return
	}

	err := r.ParseForm()
	if err != nil {
		s.log.Info("malformed callback form", "error", err.Error())
	}

	q := r.URL.Query()
	if next := r.PostForm.Get("next"); next != "" {
		q.Set("next", next)
	}

	fragment := url.Values{}
	if s.validCallbackState(r) {
		fragment.Set("access_token", strings.TrimSpace(r.PostForm.Get("access_token")))
		fragment.Set("refresh_token", strings.TrimSpace(r.PostForm.Get("refresh_token")))
	} else {
		s.log.Info("callback state mismatch, ignoring tokens")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     callbackStateCookieName,
		Value:    "",
		Path:     "/auth/callback",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	o := flow.Callback{
		Query:      q,
		Fragment:   fragment,
		HasSession: s.sessionCheck(r, idp),
		SetSession: func(ctx context.Context, accessToken, refreshToken string) error {
			_, err := s.sessions.Establish(ctx, w, r, idp, accessToken, refreshToken)
			return err
		},
	}.Resolve(r.Context())

	s.finish(w, r, o, http.StatusSeeOther)
}

func (s *Server) validCallbackState(r *http.Request) bool {
	c, err := r.Cookie(callbackStateCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	st := r.PostForm.Get("state")
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(st)) == 1
}

func (s *Server) renderBridge(w http.ResponseWriter, r *http.Request, next string) {
	st, err := uuid.NewV4()
	if err != nil {
		s.log.Error(err, "while generating callback state")
		http.Redirect(w, r, flow.LoginURL(next), http.StatusFound)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     callbackStateCookieName,
		Value:    st.String(),
		Path:     "/auth/callback",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	s.renderPage(w, http.StatusOK, s.pages.bridge, bridgeData{
		Next:     next,
		LoginURL: flow.LoginURL(next),
		State:    st.String(),
	})
}

// finish writes the terminal state of a resolver.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, o flow.Outcome, redirectCode int) {
	log := s.log.WithValues("path", r.URL.Path, "trail", o.TrailString(), "location", o.Location)

	switch o.State {
	case flow.AwaitingFragment:
		log.V(1).Info("awaiting fragment")
		s.renderBridge(w, r, o.Location)
		return
	case flow.RedirectLogin:
		if o.Err != nil {
			log = log.WithValues("reason", o.Err.Error())
		}
		log.Info("redirecting to login")
		if o.Notice != "" {
			setNotice(w, o.Notice)
		}
	default:
		log.V(1).Info("redirecting")
	}

	http.Redirect(w, r, o.Location, redirectCode)
}
