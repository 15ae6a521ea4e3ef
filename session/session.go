package session

import (
	"time"

	"github.com/draganm/inviteflow/provider"
	"github.com/golang-jwt/jwt/v5"
)

type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the access token has expired.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// claimsOf reads the claims of an access token without verifying it. The
// token is verified by the provider before a session is stored.
func claimsOf(accessToken string) (*accessClaims, bool) {
	c := &accessClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(accessToken, c)
	if err != nil {
		return nil, false
	}
	return c, true
}

// expiryOf picks the access token expiry: the exp claim, then the expiry
// reported with the tokens, then now+fallback.
func expiryOf(accessToken string, t *provider.Tokens, now time.Time, fallback time.Duration) time.Time {
	if c, ok := claimsOf(accessToken); ok && c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	if t != nil {
		if exp := t.Expiry(now); !exp.IsZero() {
			return exp
		}
	}
	return now.Add(fallback)
}
