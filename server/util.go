package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const noticeCookieName = "inviteflow_notice"

func toJSON(v interface{}) []byte {
	d, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("while marshalling to JSON: %w", err))
	}
	return d
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(toJSON(v))
}

// setNotice leaves a one-shot message for the page the browser lands on.
// The cookie is readable by scripts.
func setNotice(w http.ResponseWriter, notice string) {
	http.SetCookie(w, &http.Cookie{
		Name:     noticeCookieName,
		Value:    url.QueryEscape(notice),
		Path:     "/",
		MaxAge:   60,
		SameSite: http.SameSiteLaxMode,
	})
}

// Notice decodes the notice cookie of a response or request header value.
func Notice(c *http.Cookie) string {
	if c == nil {
		return ""
	}
	n, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return n
}
