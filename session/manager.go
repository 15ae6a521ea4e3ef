package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/draganm/inviteflow/provider"
	"github.com/gofrs/uuid"
)

const (
	DefaultCookieName = "inviteflow_session"
	DefaultRetention  = 30 * 24 * time.Hour
	defaultTokenTTL   = time.Hour
)

// Verifier checks an access token with the identity provider.
type Verifier interface {
	GetUser(ctx context.Context, accessToken string) (*provider.User, error)
}

// Refresher trades a refresh token for a fresh token pair.
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*provider.Tokens, error)
}

// Manager binds stored sessions to the browser through an HttpOnly cookie
// holding the session id. Tokens never leave the server.
type Manager struct {
	store      Store
	cookieName string
	retention  time.Duration
	now        func() time.Time
}

func NewManager(store Store, retention time.Duration) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		store:      store,
		cookieName: DefaultCookieName,
		retention:  retention,
		now:        time.Now,
	}
}

// SetClock replaces the clock, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) Retention() time.Duration {
	return m.retention
}

// Current returns the live session of the request or nil. An expired access
// token is refreshed once when refresher is not nil; a failed refresh drops
// the session.
func (m *Manager) Current(ctx context.Context, r *http.Request, refresher Refresher) (*Session, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}

	s, err := m.store.Get(ctx, c.Value)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := m.now()

	if !s.Expired(now) {
		return s, nil
	}

	if refresher == nil || s.RefreshToken == "" {
		return nil, nil
	}

	t, err := refresher.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		err = m.store.Delete(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	s.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		s.RefreshToken = t.RefreshToken
	}
	s.ExpiresAt = expiryOf(t.AccessToken, t, now, defaultTokenTTL)

	err = m.store.Put(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("while storing refreshed session: %w", err)
	}

	return s, nil
}

// Establish verifies the token pair with the provider and starts a session.
// A verification failure is returned as is and nothing is stored.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, v Verifier, accessToken, refreshToken string) (*Session, error) {
	u, err := v.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return m.start(ctx, w, r, u, &provider.Tokens{AccessToken: accessToken, RefreshToken: refreshToken})
}

// Adopt starts a session from tokens the provider just issued, as returned
// by a code exchange.
func (m *Manager) Adopt(ctx context.Context, w http.ResponseWriter, r *http.Request, t *provider.Tokens) (*Session, error) {
	u := t.User
	if u == nil {
		u = &provider.User{}
		if c, ok := claimsOf(t.AccessToken); ok {
			u.ID = c.Subject
			u.Email = c.Email
		}
	}

	return m.start(ctx, w, r, u, t)
}

func (m *Manager) start(ctx context.Context, w http.ResponseWriter, r *http.Request, u *provider.User, t *provider.Tokens) (*Session, error) {
	id, err := uuid.NewV6()
	if err != nil {
		return nil, fmt.Errorf("while generating session id: %w", err)
	}

	now := m.now()

	s := &Session{
		ID:           id.String(),
		UserID:       u.ID,
		Email:        u.Email,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    expiryOf(t.AccessToken, t, now, defaultTokenTTL),
		CreatedAt:    now,
	}

	err = m.store.Put(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("while storing session: %w", err)
	}

	// a previous session of this browser is replaced
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" && c.Value != s.ID {
		err = m.store.Delete(ctx, c.Value)
		if err != nil {
			return nil, fmt.Errorf("while deleting replaced session: %w", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  now.Add(m.retention),
		Secure:   r.TLS != nil,
	})

	return s, nil
}

// Clear ends the session of the request, if any.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return nil
	}

	return m.store.Delete(ctx, c.Value)
}

// Purge removes sessions that expired more than the retention ago.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	return m.store.Purge(ctx, m.now().Add(-m.retention))
}
