package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draganm/inviteflow/config"
	"github.com/draganm/inviteflow/profiles"
	"github.com/draganm/inviteflow/provider"
	"github.com/draganm/inviteflow/server"
	"github.com/draganm/inviteflow/session"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/browser"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Command = &cli.Command{
	Name:  "server",
	Usage: "serve the signup API and the auth callback routes",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   ":3000",
			EnvVars: []string{"ADDR"},
		},
		&cli.StringFlag{
			Name:    "work-dir",
			Value:   "work",
			EnvVars: []string{"WORK_DIR"},
		},
		&cli.StringFlag{
			Name:    "config-file",
			Usage:   "config file to use instead of .inviteflow/config.yaml and ~/.inviteflow/config.yaml",
			EnvVars: []string{"CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "auth-provider",
			Value:   "gotrue",
			Usage:   "gotrue or mock",
			EnvVars: []string{"AUTH_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "profile-store",
			Value:   "postgrest",
			Usage:   "postgrest or bolted",
			EnvVars: []string{"PROFILE_STORE"},
		},
		&cli.StringFlag{
			Name:    "session-store",
			Value:   "bolted",
			Usage:   "bolted or redis",
			EnvVars: []string{"SESSION_STORE"},
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Value:   "localhost:6379",
			EnvVars: []string{"REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			EnvVars: []string{"REDIS_PASSWORD"},
		},
		&cli.DurationFlag{
			Name:    "session-retention",
			Value:   session.DefaultRetention,
			EnvVars: []string{"SESSION_RETENTION"},
		},
		&cli.StringFlag{
			Name:    "session-purge-schedule",
			Value:   "@every 10m",
			EnvVars: []string{"SESSION_PURGE_SCHEDULE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:    "open-browser",
			EnvVars: []string{"OPEN_BROWSER"},
		},
	},
	Action: func(c *cli.Context) (err error) {
		defer func() {
			if err != nil {
				err = cli.Exit(fmt.Errorf("while running server: %w", err), 1)
			}
		}()

		lvl, err := zapcore.ParseLevel(c.String("log-level"))
		if err != nil {
			return
		}

		lc := zap.NewProductionConfig()

		lc.Sampling = nil
		lc.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		lc.DisableStacktrace = true
		lc.Level = zap.NewAtomicLevelAt(lvl)

		logger, err := lc.Build()
		if err != nil {
			return
		}

		defer logger.Sync()
		log := zapr.NewLogger(logger)

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		files := []string{c.String("config-file")}
		if c.String("config-file") == "" {
			files, err = config.Files()
			if err != nil {
				return err
			}
		}

		live, err := config.NewLive(files...)
		if err != nil {
			return fmt.Errorf("while loading config: %w", err)
		}

		err = live.Watch(ctx, log.WithName("config"))
		if err != nil {
			return fmt.Errorf("while watching config files: %w", err)
		}

		opts := server.Options{
			Config:           live.Get,
			SessionRetention: c.Duration("session-retention"),
			Log:              log.WithName("server"),
		}

		switch c.String("auth-provider") {
		case "gotrue":
			opts.Providers = provider.NewSettingsFactory(func() provider.Settings {
				cfg := live.Get()
				return provider.Settings{
					URL:        cfg.ProviderURL,
					PublicKey:  cfg.ProviderPublicKey,
					ServiceKey: cfg.ProviderServiceKey,
				}
			})
		case "mock":
			mp := provider.NewMock()
			mlog := log.WithName("mock-provider")
			mp.OnSend = func(e provider.Email) {
				mlog.Info("email sent", "to", e.To, "kind", e.Kind, "link", e.Link)
			}
			opts.Providers = provider.StaticFactory{Provider: mp}
		default:
			return fmt.Errorf("unsupported auth provider %q", c.String("auth-provider"))
		}

		switch c.String("profile-store") {
		case "postgrest":
			opts.Profiles = postgrestProfiles(live)
		case "bolted":
		default:
			return fmt.Errorf("unsupported profile store %q", c.String("profile-store"))
		}

		switch c.String("session-store") {
		case "redis":
			rdb := redis.NewClient(&redis.Options{
				Addr:     c.String("redis-addr"),
				Password: c.String("redis-password"),
			})
			defer rdb.Close()

			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = rdb.Ping(pctx).Err()
			cancel()
			if err != nil {
				return fmt.Errorf("while connecting to redis at %s: %w", c.String("redis-addr"), err)
			}

			opts.SessionStore = session.NewRedisStore(rdb, "inviteflow", c.Duration("session-retention"))
		case "bolted":
		default:
			return fmt.Errorf("unsupported session store %q", c.String("session-store"))
		}

		s, err := server.Open(c.String("work-dir"), opts)
		if err != nil {
			return fmt.Errorf("while starting inviteflow server: %w", err)
		}

		defer s.Close()

		_, err = session.SchedulePurge(ctx, c.String("session-purge-schedule"), s.Sessions(), log.WithName("purge"))
		if err != nil {
			return err
		}

		serverAddr := c.String("addr")
		l, err := net.Listen("tcp", serverAddr)
		if err != nil {
			return fmt.Errorf("while starting listener: %w", err)
		}

		hs := &http.Server{
			Handler:           s,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := hs.Shutdown(sctx)
			if err != nil {
				log.Error(err, "while shutting down")
			}
		}()

		log.Info("server listening", "addr", l.Addr().String())

		if c.Bool("open-browser") {
			openBrowser(live.Get(), l.Addr(), log)
		}

		err = hs.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

// postgrestProfiles writes profiles to the data API next to the identity
// provider, with the service key.
func postgrestProfiles(live *config.Live) profiles.Factory {
	return func() (profiles.Store, error) {
		cfg := live.Get()

		missing := []string{}
		if cfg.ProviderURL == "" {
			missing = append(missing, "AUTH_PROVIDER_URL")
		}
		if cfg.ProviderServiceKey == "" {
			missing = append(missing, "AUTH_PROVIDER_SERVICE_KEY")
		}
		if len(missing) > 0 {
			return nil, &provider.ConfigurationError{Missing: missing}
		}

		return profiles.NewPostgREST(cfg.ProviderURL, cfg.ProviderServiceKey, cfg.ProfilesTable), nil
	}
}

func openBrowser(cfg *config.Config, addr net.Addr, log logr.Logger) {
	u := cfg.SiteURL
	if u == "" {
		_, port, err := net.SplitHostPort(addr.String())
		if err != nil {
			log.Error(err, "could not determine port")
			return
		}
		u = "http://localhost:" + port + "/healthz"
	}

	err := browser.OpenURL(u)
	if err != nil {
		log.Error(err, "could not open browser", "url", u)
	}
}
