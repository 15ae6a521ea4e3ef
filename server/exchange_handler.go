package server

import (
	"context"
	"net/http"

	"github.com/draganm/inviteflow/flow"
)

// pkceVerifierCookieName holds the code verifier a front end stores before
// starting a code flow.
const pkceVerifierCookieName = "inviteflow_code_verifier"

func (s *Server) exchange(w http.ResponseWriter, r *http.Request) {
	idp, ok := s.publicProvider(w)
	if !ok {
		return
	}

	verifier := ""
	if c, err := r.Cookie(pkceVerifierCookieName); err == nil {
		verifier = c.Value
		http.SetCookie(w, &http.Cookie{
			Name:   pkceVerifierCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	}

	o := flow.Exchange{
		Query: r.URL.Query(),
		Exchange: func(ctx context.Context, code string) error {
			t, err := idp.ExchangeCodeForSession(ctx, code, verifier)
			if err != nil {
				return err
			}
			_, err = s.sessions.Adopt(ctx, w, r, t)
			return err
		},
	}.Resolve(r.Context())

	s.finish(w, r, o, http.StatusFound)
}
