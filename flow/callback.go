package flow

import (
	"context"
	"net/url"
	"strings"
)

const (
	NoTokensNotice      = "Invite link did not contain session tokens. Redirecting to login…"
	InvalidTokensNotice = "Invite session invalid/expired. Redirecting to login…"
)

// Callback resolves the landing page of invite and recovery links, where the
// provider puts the token pair in the URL fragment.
type Callback struct {
	Query url.Values
	// Fragment is nil while the browser has not forwarded the fragment yet.
	Fragment   url.Values
	HasSession func(ctx context.Context) (bool, error)
	SetSession func(ctx context.Context, accessToken, refreshToken string) error
}

func (c Callback) Plan() Plan {
	p := Plan{
		Next:        c.Query.Get("next"),
		DefaultNext: DefaultCallbackNext,
		HasSession:  c.HasSession,
	}

	if c.Fragment == nil {
		p.Step = Step{Deferred: true}
		return p
	}

	at := c.Fragment.Get("access_token")
	rt := c.Fragment.Get("refresh_token")

	p.Step = Step{
		Ready:         at != "" && rt != "",
		MissingNotice: NoTokensNotice,
		FailedNotice:  InvalidTokensNotice,
		Run: func(ctx context.Context) error {
			return c.SetSession(ctx, at, rt)
		},
	}

	return p
}

func (c Callback) Resolve(ctx context.Context) Outcome {
	return Resolve(ctx, c.Plan())
}

// ParseFragment parses a URL fragment, with or without the leading '#'.
// A malformed fragment yields an empty, non-nil set.
func ParseFragment(fragment string) url.Values {
	v, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return url.Values{}
	}
	return v
}
