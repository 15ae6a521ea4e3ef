package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/draganm/bolted"
	"github.com/draganm/bolted/embedded"
	"github.com/draganm/inviteflow/config"
	"github.com/draganm/inviteflow/profiles"
	"github.com/draganm/inviteflow/provider"
	"github.com/draganm/inviteflow/session"
	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"go.uber.org/multierr"
)

type Options struct {
	Providers provider.Factory
	// Profiles defaults to a store in the state db.
	Profiles profiles.Factory
	// SessionStore defaults to a store in the state db.
	SessionStore     session.Store
	SessionRetention time.Duration
	// Config is consulted on every request. Defaults to an empty config.
	Config func() *config.Config
	Log    logr.Logger
}

type Server struct {
	http.Handler
	db        bolted.Database
	providers provider.Factory
	profiles  profiles.Factory
	sessions  *session.Manager
	config    func() *config.Config
	pages     *pages
	log       logr.Logger
}

func createIfNotExisting(dir string, perm os.FileMode) error {
	s, err := os.Stat(dir)
	if os.IsNotExist(err) {
		err = os.MkdirAll(dir, perm)
		if err != nil {
			return fmt.Errorf("while creating %s: %w", dir, err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if !s.IsDir() {
		return fmt.Errorf("%s is not a dir", dir)
	}
	return nil
}

func Open(dir string, opts Options) (*Server, error) {
	if opts.Providers == nil {
		return nil, fmt.Errorf("identity provider factory must be set")
	}

	err := createIfNotExisting(dir, 0700)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "state")
	db, err := embedded.Open(dbPath, 0700, embedded.Options{})
	if err != nil {
		return nil, fmt.Errorf("while opening state db: %w", err)
	}

	s, err := open(db, opts)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	return s, nil
}

func open(db bolted.Database, opts Options) (*Server, error) {
	log := opts.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	sessionStore := opts.SessionStore
	if sessionStore == nil {
		bs, err := session.NewBoltedStore(db)
		if err != nil {
			return nil, err
		}
		sessionStore = bs
	}

	profileFactory := opts.Profiles
	if profileFactory == nil {
		ps, err := profiles.NewBoltedStore(db)
		if err != nil {
			return nil, err
		}
		profileFactory = profiles.StaticFactory(ps)
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = func() *config.Config {
			return &config.Config{}
		}
	}

	pg, err := loadPages()
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	s := &Server{
		Handler:   r,
		db:        db,
		providers: opts.Providers,
		profiles:  profileFactory,
		sessions:  session.NewManager(sessionStore, opts.SessionRetention),
		config:    cfg,
		pages:     pg,
		log:       log,
	}

	r.Use(s.recoverPanics)

	r.Methods("POST").Path("/api/auth/signup").HandlerFunc(s.signup)
	r.Methods("GET").Path("/api/auth/session").HandlerFunc(s.sessionInfo)
	r.Methods("GET").Path("/auth/callback").HandlerFunc(s.callbackPage)
	r.Methods("POST").Path("/auth/callback").HandlerFunc(s.callbackTokens)
	r.Methods("GET").Path("/auth/exchange").HandlerFunc(s.exchange)
	r.Methods("POST").Path("/auth/logout").HandlerFunc(s.logout)
	r.Methods("GET").Path("/healthz").HandlerFunc(s.healthz)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.adminAuth)
	admin.Methods("GET").Path("/backup").HandlerFunc(s.backup)

	return s, nil
}

// Sessions exposes the session manager, for scheduling purges.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// DB is the embedded state db.
func (s *Server) DB() bolted.Database {
	return s.db
}

func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			s.log.Error(fmt.Errorf("%v", p), "handler panicked", "method", r.Method, "path", r.URL.Path)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
		}()
		next.ServeHTTP(w, r)
	})
}
