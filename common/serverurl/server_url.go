package serverurl

import (
	"fmt"
	"net/url"

	"github.com/draganm/inviteflow/config"
)

// ServerURL picks the server the CLI talks to: the flag value, then the
// config files and environment, then the local default.
func ServerURL(flagValue string) (string, error) {
	cfg, err := config.Current()
	if err != nil {
		return "", err
	}

	su := cfg.GetServerURL(flagValue)

	u, err := url.Parse(su)
	if err != nil {
		return "", fmt.Errorf("while parsing server url %q: %w", su, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("server url %q must be http or https", su)
	}

	return su, nil
}
