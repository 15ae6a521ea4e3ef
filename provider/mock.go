package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

// Email is a message the mock provider pretends to have sent.
type Email struct {
	To         string
	Kind       string
	RedirectTo string
	Link       string
}

type mockClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Mock is an in-memory identity provider used for local development and
// tests. Emailed links carry implicit-flow tokens in the URL fragment.
type Mock struct {
	mu       sync.Mutex
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	users    map[string]*User
	refresh  map[string]string
	codes    map[string]string
	revoked  map[string]struct{}
	sent     []Email

	// InviteErr, when set, is returned by the next invite call.
	InviteErr error
	// ResetErr, when set, is returned by every reset call.
	ResetErr error
	// OmitUserID makes invites succeed without a user id.
	OmitUserID bool
	// OnSend, when set, sees every email as it is sent.
	OnSend func(e Email)
}

func NewMock() *Mock {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	if err != nil {
		panic(fmt.Errorf("while generating mock secret: %w", err))
	}
	return &Mock{
		secret:   secret,
		tokenTTL: time.Hour,
		now:      time.Now,
		users:    map[string]*User{},
		refresh:  map[string]string{},
		codes:    map[string]string{},
		revoked:  map[string]struct{}{},
	}
}

// SetClock replaces the clock used for minting and validating tokens.
func (m *Mock) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Register adds an existing account.
func (m *Mock) Register(email string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(email)
}

func (m *Mock) register(email string) *User {
	u := &User{ID: uuid.Must(uuid.NewV4()).String(), Email: email}
	m.users[email] = u
	return u
}

// Sent returns all emails sent so far.
func (m *Mock) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

// LastEmail returns the most recent email sent to the address.
func (m *Mock) LastEmail(to string) (Email, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i], true
		}
	}
	return Email{}, false
}

// IssueCode creates a one-time code for an existing account.
func (m *Mock) IssueCode(email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, found := m.users[email]
	if !found {
		return "", fmt.Errorf("unknown user %s", email)
	}
	code := randomToken()
	m.codes[code] = u.ID
	return code, nil
}

// Revoke invalidates an access token.
func (m *Mock) Revoke(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[accessToken] = struct{}{}
}

func (m *Mock) userByID(id string) *User {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *Mock) mint(u *User) (*Tokens, error) {
	now := m.now()
	exp := now.Add(m.tokenTTL)

	at, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mockClaims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        randomToken(),
		},
	}).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("while signing access token: %w", err)
	}

	rt := randomToken()
	m.refresh[rt] = u.ID

	return &Tokens{
		AccessToken:  at,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    int64(m.tokenTTL / time.Second),
		ExpiresAt:    exp.Unix(),
		User:         &User{ID: u.ID, Email: u.Email},
	}, nil
}

func (m *Mock) send(kind, to, redirectTo string, t *Tokens) {
	f := url.Values{}
	f.Set("access_token", t.AccessToken)
	f.Set("refresh_token", t.RefreshToken)
	f.Set("token_type", t.TokenType)
	f.Set("type", kind)
	e := Email{
		To:         to,
		Kind:       kind,
		RedirectTo: redirectTo,
		Link:       redirectTo + "#" + f.Encode(),
	}
	m.sent = append(m.sent, e)
	if m.OnSend != nil {
		m.OnSend(e)
	}
}

func (m *Mock) InviteUserByEmail(ctx context.Context, email, redirectTo string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InviteErr != nil {
		err := m.InviteErr
		m.InviteErr = nil
		return nil, err
	}

	if _, found := m.users[email]; found {
		return nil, &Error{
			Status:  422,
			Code:    "email_exists",
			Message: "A user with this email address has already been registered",
		}
	}

	u := m.register(email)
	t, err := m.mint(u)
	if err != nil {
		return nil, err
	}

	m.send("invite", email, redirectTo, t)

	if m.OmitUserID {
		return &User{Email: email}, nil
	}

	return &User{ID: u.ID, Email: u.Email}, nil
}

func (m *Mock) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ResetErr != nil {
		return m.ResetErr
	}

	u, found := m.users[email]
	if !found {
		// the provider does not disclose unknown addresses
		return nil
	}

	t, err := m.mint(u)
	if err != nil {
		return err
	}

	m.send("recovery", email, redirectTo, t)
	return nil
}

func (m *Mock) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, found := m.codes[code]
	if !found {
		return nil, &Error{Status: 403, Code: "flow_state_not_found", Message: "invalid flow state, no valid flow state found"}
	}
	delete(m.codes, code)

	u := m.userByID(id)
	if u == nil {
		return nil, &Error{Status: 404, Code: "user_not_found", Message: "User not found"}
	}

	return m.mint(u)
}

func (m *Mock) GetUser(ctx context.Context, accessToken string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.revoked[accessToken]; found {
		return nil, &Error{Status: 403, Code: "session_not_found", Message: "Session from session_id claim in JWT does not exist"}
	}

	claims := &mockClaims{}
	_, err := jwt.ParseWithClaims(
		accessToken,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, &Error{Status: 403, Code: "bad_jwt", Message: "invalid JWT: token is expired"}
	}
	if err != nil {
		return nil, &Error{Status: 403, Code: "bad_jwt", Message: "invalid JWT: " + strings.TrimPrefix(err.Error(), "token ")}
	}

	u := m.userByID(claims.Subject)
	if u == nil {
		return nil, &Error{Status: 404, Code: "user_not_found", Message: "User not found"}
	}

	return &User{ID: u.ID, Email: u.Email}, nil
}

func (m *Mock) RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, found := m.refresh[refreshToken]
	if !found {
		return nil, &Error{Status: 400, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	}
	delete(m.refresh, refreshToken)

	u := m.userByID(id)
	if u == nil {
		return nil, &Error{Status: 404, Code: "user_not_found", Message: "User not found"}
	}

	return m.mint(u)
}

func randomToken() string {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		panic(fmt.Errorf("while reading random bytes: %w", err))
	}
	return hex.EncodeToString(b)
}
