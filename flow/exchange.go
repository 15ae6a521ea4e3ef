package flow

import (
	"context"
	"net/url"
)

const ExpiredLinkNotice = "Link expired. Please login again."

// Exchange resolves links of the one-time code flow. It always attempts the
// exchange when a code is present, whether or not a session exists.
type Exchange struct {
	Query    url.Values
	Exchange func(ctx context.Context, code string) error
}

func (e Exchange) Plan() Plan {
	code := e.Query.Get("code")
	return Plan{
		Next:        e.Query.Get("next"),
		DefaultNext: DefaultExchangeNext,
		Step: Step{
			Ready:        code != "",
			FailedNotice: ExpiredLinkNotice,
			Run: func(ctx context.Context) error {
				return e.Exchange(ctx, code)
			},
		},
	}
}

func (e Exchange) Resolve(ctx context.Context) Outcome {
	return Resolve(ctx, e.Plan())
}
