package server

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// adminAuth guards the admin API with the configured admin token, sent as a
// bearer token or as the basic auth password. Without a token the API does
// not exist.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		log := s.log.WithValues("path", r.URL.Path)

		expected := s.config().AdminToken
		if expected == "" {
			http.NotFound(w, r)
			return
		}

		requireAuthentication := func(reason string) {
			log.Info("admin auth failed", "reason", reason)
			w.Header().Set("WWW-Authenticate", `Basic realm="inviteflow"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authorized"})
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			requireAuthentication("no authorization header")
			return
		}

		before, after, found := strings.Cut(auth, " ")
		if !found {
			requireAuthentication("authorization header malformed")
			return
		}

		var tkn string

		switch strings.ToLower(before) {
		case "bearer":
			tkn = after
		case "basic":
			decoded, err := base64.StdEncoding.DecodeString(after)
			if err != nil {
				requireAuthentication("basic auth malformed")
				return
			}
			_, password, found := strings.Cut(string(decoded), ":")
			if !found {
				requireAuthentication("basic auth malformed")
				return
			}
			tkn = password
		default:
			requireAuthentication(fmt.Sprintf("unsupported auth method %s", before))
			return
		}

		if subtle.ConstantTimeCompare([]byte(tkn), []byte(expected)) != 1 {
			requireAuthentication("token invalid")
			return
		}

		next.ServeHTTP(w, r)

	})
}
