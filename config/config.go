package config

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSiteURL   = "http://localhost:3000"
	DefaultServerURL = "http://localhost:3000"
)

type Config struct {
	// SiteURL is the public base URL put in emailed links.
	SiteURL            string `yaml:"site_url" env:"SITE_URL"`
	ProviderURL        string `yaml:"provider_url" env:"AUTH_PROVIDER_URL"`
	ProviderPublicKey  string `yaml:"provider_public_key" env:"AUTH_PROVIDER_PUBLIC_KEY"`
	ProviderServiceKey string `yaml:"provider_service_key" env:"AUTH_PROVIDER_SERVICE_KEY"`
	ProfilesTable      string `yaml:"profiles_table" env:"PROFILES_TABLE"`
	// ServerURL is where the signup command finds the server.
	ServerURL string `yaml:"server_url" env:"INVITEFLOW_SERVER_URL"`
	// AdminToken guards the admin API. The API is off when it is empty.
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN"`
}

func (c *Config) GetServerURL(cliURL string) string {
	if cliURL != "" {
		return cliURL
	}

	if c.ServerURL != "" {
		return c.ServerURL
	}

	return DefaultServerURL
}

// GetSiteURL resolves the public site URL: the explicit setting, then the
// host the request came in on, then the local default. The result has no
// trailing slash.
func (c *Config) GetSiteURL(r *http.Request) string {
	if c.SiteURL != "" {
		return strings.TrimSuffix(c.SiteURL, "/")
	}

	if r != nil {
		host := r.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = r.Host
		}

		if host != "" {
			scheme := r.Header.Get("X-Forwarded-Proto")
			if scheme == "" {
				if r.TLS != nil {
					scheme = "https"
				} else {
					scheme = "http"
				}
			}
			return scheme + "://" + strings.TrimSuffix(host, "/")
		}
	}

	return DefaultSiteURL
}

func (c *Config) merge(nx *Config) {

	if nx == nil {
		return
	}

	if c.SiteURL == "" {
		c.SiteURL = nx.SiteURL
	}

	if c.ProviderURL == "" {
		c.ProviderURL = nx.ProviderURL
	}

	if c.ProviderPublicKey == "" {
		c.ProviderPublicKey = nx.ProviderPublicKey
	}

	if c.ProviderServiceKey == "" {
		c.ProviderServiceKey = nx.ProviderServiceKey
	}

	if c.ProfilesTable == "" {
		c.ProfilesTable = nx.ProfilesTable
	}

	if c.ServerURL == "" {
		c.ServerURL = nx.ServerURL
	}

	if c.AdminToken == "" {
		c.AdminToken = nx.AdminToken
	}

}

// FromEnv reads the environment. Environment values win over files.
func FromEnv() (*Config, error) {
	c := &Config{}
	err := env.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("while parsing environment: %w", err)
	}
	return c, nil
}

// Files lists the config files in order of precedence.
func Files() ([]string, error) {
	hd, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("while getting user's home dir: %w", err)
	}

	return []string{
		filepath.Join(".inviteflow", "config.yaml"),
		filepath.Join(hd, ".inviteflow", "config.yaml"),
	}, nil
}

// Current merges the environment with the local and the home config files.
func Current() (*Config, error) {
	files, err := Files()
	if err != nil {
		return nil, err
	}
	return Load(files...)
}

// Load merges the environment with the given files, earlier files winning.
// Missing files are skipped.
func Load(paths ...string) (*Config, error) {
	c, err := FromEnv()
	if err != nil {
		return nil, err
	}

	for _, p := range paths {
		cf, err := loadConfig(p)
		if err != nil {
			return nil, err
		}
		c.merge(cf)
	}

	return c, nil
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	defer f.Close()

	c := &Config{}
	err = yaml.NewDecoder(f).Decode(c)
	if errors.Is(err, io.EOF) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while decoding %s: %w", path, err)
	}

	return c, nil
}
