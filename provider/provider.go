package provider

import (
	"context"
	"time"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Tokens is the session material handed out by the identity provider.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Expiry returns the access token expiry reported by the provider, or the
// zero time when the provider did not report one.
func (t *Tokens) Expiry(now time.Time) time.Time {
	switch {
	case t.ExpiresAt > 0:
		return time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

// IdentityProvider is the contract of the hosted authentication service.
// Every call is a single round trip: implementations never retry.
type IdentityProvider interface {
	InviteUserByEmail(ctx context.Context, email, redirectTo string) (*User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*Tokens, error)
	GetUser(ctx context.Context, accessToken string) (*User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error)
}

// Factory hands out provider clients at call time. Admin clients carry the
// privileged key and are only used server side.
type Factory interface {
	Admin() (IdentityProvider, error)
	Public() (IdentityProvider, error)
}
