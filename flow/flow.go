// Package flow holds the redirect state machine shared by the auth callback
// routes. A resolver checks the destination, optionally looks for a live
// session, performs at most one provider round trip and ends in a redirect.
package flow

import (
	"context"
	"net/url"
	"strings"
)

type State int

const (
	CheckingSession State = iota
	HasSession
	ParsingToken
	AwaitingFragment
	Redirecting
	RedirectLogin
)

func (s State) String() string {
	switch s {
	case CheckingSession:
		return "checking-session"
	case HasSession:
		return "has-session"
	case ParsingToken:
		return "parsing-token"
	case AwaitingFragment:
		return "awaiting-fragment"
	case Redirecting:
		return "redirecting"
	case RedirectLogin:
		return "redirect-login"
	}
	return "unknown"
}

const (
	DefaultCallbackNext = "/set-password?next=/select"
	DefaultExchangeNext = "/select"
	LoginPath           = "/login"
)

// Step is the single provider call of a resolver.
type Step struct {
	// Deferred means the credentials are not available to the server yet
	// and have to be collected by the browser first.
	Deferred bool
	// Ready reports whether the request carries the credentials.
	Ready bool
	// MissingNotice is shown on the login page when Ready is false.
	MissingNotice string
	Run           func(ctx context.Context) error
	// FailedNotice is shown on the login page when Run fails.
	FailedNotice string
}

type Plan struct {
	Next        string
	DefaultNext string
	// HasSession, when set, is consulted before the step. A live session
	// short-circuits to the destination.
	HasSession func(ctx context.Context) (bool, error)
	Step       Step
}

type Outcome struct {
	State State
	// Trail lists the states visited, terminal state last.
	Trail    []State
	Location string
	Notice   string
	// Err is the provider error behind a RedirectLogin, if any.
	Err error
}

// TrailString renders the visited states, as in "checking-session>redirecting".
func (o Outcome) TrailString() string {
	names := make([]string, len(o.Trail))
	for i, s := range o.Trail {
		names[i] = s.String()
	}
	return strings.Join(names, ">")
}

// Resolve runs the plan to a terminal state. It never fails: every failure
// ends in RedirectLogin carrying the destination forward.
func Resolve(ctx context.Context, p Plan) Outcome {
	next := SafeNext(p.Next, p.DefaultNext)
	trail := []State{}

	finish := func(s State, location, notice string, err error) Outcome {
		trail = append(trail, s)
		return Outcome{
			State:    s,
			Trail:    trail,
			Location: location,
			Notice:   notice,
			Err:      err,
		}
	}

	if p.HasSession != nil {
		trail = append(trail, CheckingSession)
		found, err := p.HasSession(ctx)
		if err == nil && found {
			trail = append(trail, HasSession)
			return finish(Redirecting, next, "", nil)
		}
	}

	if p.Step.Deferred {
		return finish(AwaitingFragment, next, "", nil)
	}

	trail = append(trail, ParsingToken)

	if !p.Step.Ready || p.Step.Run == nil {
		return finish(RedirectLogin, LoginURL(next), p.Step.MissingNotice, nil)
	}

	err := p.Step.Run(ctx)
	if err != nil {
		return finish(RedirectLogin, LoginURL(next), p.Step.FailedNotice, err)
	}

	return finish(Redirecting, next, "", nil)
}

// LoginURL is the login entry point that resumes at next.
func LoginURL(next string) string {
	return LoginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext returns next when it is a same-site path, def otherwise.
func SafeNext(next, def string) string {
	if next == "" {
		return def
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return def
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return def
	}
	return next
}
