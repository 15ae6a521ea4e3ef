package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/draganm/inviteflow/common/client"
)

// GoTrue talks to a GoTrue compatible auth API mounted under /auth/v1.
type GoTrue struct {
	baseURL    string
	publicKey  string
	serviceKey string
}

// NewGoTrue creates a client. serviceKey may be empty for clients that only
// perform public calls.
func NewGoTrue(baseURL, publicKey, serviceKey string) *GoTrue {
	return &GoTrue{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		publicKey:  publicKey,
		serviceKey: serviceKey,
	}
}

func (g *GoTrue) publicHeader() http.Header {
	h := http.Header{}
	h.Set("apikey", g.publicKey)
	h.Set("Authorization", "Bearer "+g.publicKey)
	return h
}

func (g *GoTrue) adminHeader() http.Header {
	h := http.Header{}
	h.Set("apikey", g.serviceKey)
	h.Set("Authorization", "Bearer "+g.serviceKey)
	return h
}

func (g *GoTrue) call(ctx context.Context, method, pth string, header http.Header, query url.Values, body interface{}, response interface{}) error {
	var encoder func() (io.Reader, error)
	if body != nil {
		encoder = client.JSONEncoder(body)
	}

	var decoder func(io.Reader) error
	if response != nil {
		decoder = client.JSONDecoder(response)
	}

	err := client.CallAPI(ctx, g.baseURL, method, "auth/v1/"+pth, header, query, encoder, decoder, http.StatusOK)

	se := &client.StatusError{}
	if errors.As(err, &se) {
		return decodeError(se.StatusCode, se.Body)
	}

	return err
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	q := url.Values{}
	q.Set("redirect_to", redirectTo)
	return q
}

func (g *GoTrue) InviteUserByEmail(ctx context.Context, email, redirectTo string) (*User, error) {
	if g.serviceKey == "" {
		return nil, errors.New("invite requires the privileged key")
	}

	u := &User{}
	err := g.call(
		ctx,
		"POST", "invite",
		g.adminHeader(),
		redirectQuery(redirectTo),
		map[string]interface{}{"email": email, "data": map[string]interface{}{}},
		u,
	)
	if err != nil {
		return nil, err
	}

	return u, nil
}

func (g *GoTrue) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return g.call(
		ctx,
		"POST", "recover",
		g.publicHeader(),
		redirectQuery(redirectTo),
		map[string]string{"email": email},
		nil,
	)
}

func (g *GoTrue) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	q := url.Values{}
	q.Set("grant_type", "pkce")

	t := &Tokens{}
	err := g.call(
		ctx,
		"POST", "token",
		g.publicHeader(),
		q,
		map[string]string{"auth_code": code, "code_verifier": codeVerifier},
		t,
	)
	if err != nil {
		return nil, err
	}

	if t.AccessToken == "" {
		return nil, fmt.Errorf("code exchange returned no access token")
	}

	return t, nil
}

func (g *GoTrue) GetUser(ctx context.Context, accessToken string) (*User, error) {
	h := g.publicHeader()
	h.Set("Authorization", "Bearer "+accessToken)

	u := &User{}
	err := g.call(ctx, "GET", "user", h, nil, nil, u)
	if err != nil {
		return nil, err
	}

	if u.ID == "" {
		return nil, errors.New("provider returned user without id")
	}

	return u, nil
}

func (g *GoTrue) RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error) {
	q := url.Values{}
	q.Set("grant_type", "refresh_token")

	t := &Tokens{}
	err := g.call(
		ctx,
		"POST", "token",
		g.publicHeader(),
		q,
		map[string]string{"refresh_token": refreshToken},
		t,
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}
