package server

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/cbroglie/mustache"
)

//go:embed templates/*.mustache
var templatesFS embed.FS

type partialsProvider struct {
	fs fs.FS
}

func (pp partialsProvider) Get(name string) (string, error) {
	d, err := fs.ReadFile(pp.fs, "templates/"+name+".mustache")
	if err != nil {
		return "", fmt.Errorf("could not find template %s", name)
	}
	return string(d), nil
}

type pages struct {
	bridge     *mustache.Template
	diagnostic *mustache.Template
}

func loadPages() (*pages, error) {
	pp := partialsProvider{fs: templatesFS}

	parse := func(name string) (*mustache.Template, error) {
		d, err := pp.Get(name)
		if err != nil {
			return nil, err
		}
		t, err := mustache.ParseStringPartials(d, pp)
		if err != nil {
			return nil, fmt.Errorf("while parsing %s: %w", name, err)
		}
		return t, nil
	}

	bridge, err := parse("bridge")
	if err != nil {
		return nil, err
	}

	diagnostic, err := parse("diagnostic")
	if err != nil {
		return nil, err
	}

	return &pages{bridge: bridge, diagnostic: diagnostic}, nil
}

type bridgeData struct {
	Next     string
	LoginURL string
	State    string
}

type diagnosticData struct {
	Missing string
}

func (s *Server) renderPage(w http.ResponseWriter, code int, t *mustache.Template, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(code)
	err := t.FRender(w, data)
	if err != nil {
		s.log.Error(err, "while rendering page")
	}
}

func (s *Server) renderDiagnostic(w http.ResponseWriter, missing []string) {
	s.renderPage(w, http.StatusInternalServerError, s.pages.diagnostic, diagnosticData{
		Missing: strings.Join(missing, ", "),
	})
}
