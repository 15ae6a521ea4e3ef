package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/draganm/inviteflow/common/client"
	"github.com/draganm/inviteflow/flow"
	"github.com/draganm/inviteflow/profiles"
	"github.com/draganm/inviteflow/provider"
	"github.com/draganm/inviteflow/server"
	"github.com/draganm/inviteflow/server/testrig"
	"github.com/draganm/inviteflow/signup"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

const loginAfterCallback = "/login?next=%2Fset-password%3Fnext%3D%2Fselect"

func newInstance(t *testing.T) (context.Context, *testrig.TestServerInstance) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ts, err := testrig.NewTestServerInstance(ctx, logr.Discard())
	require.NoError(t, err)
	return ctx, ts
}

func errorOf(t *testing.T, err error) (int, string) {
	t.Helper()
	se := &client.StatusError{}
	require.True(t, errors.As(err, &se), "expected status error, got %v", err)
	er := struct {
		Error string `json:"error"`
	}{}
	require.NoError(t, json.Unmarshal(se.Body, &er))
	return se.StatusCode, er.Error
}

func TestSignupInvitesNewUser(t *testing.T) {
	ctx, ts := newInstance(t)

	res, err := ts.Signup(ctx, signup.Request{FullName: " Ada Lovelace ", Phone: "123", Email: " Ada@Example.com "})
	require.NoError(t, err)
	require.Equal(t, &signup.Result{OK: true, Mode: signup.ModeInvite, Message: "Invite email sent."}, res)

	e, found := ts.Provider.LastEmail("ada@example.com")
	require.True(t, found)
	require.Equal(t, "invite", e.Kind)
	require.Equal(t, ts.URL()+"/auth/callback?next=%2Fset-password%3Fnext%3D%2Fselect", e.RedirectTo)

	p, err := ts.Profiles.Get(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, p.UserID)
	require.Equal(t, "Ada Lovelace", p.FullName)
	require.Equal(t, "123", p.Phone)
}

func TestSignupExistingAccountGetsResetLink(t *testing.T) {
	ctx, ts := newInstance(t)
	ts.Provider.Register("grace@example.com")

	res, err := ts.Signup(ctx, signup.Request{Email: "grace@example.com"})
	require.NoError(t, err)
	require.Equal(t, signup.ModeReset, res.Mode)
	require.Equal(t, "Account exists. Password reset link sent.", res.Message)

	e, found := ts.Provider.LastEmail("grace@example.com")
	require.True(t, found)
	require.Equal(t, "recovery", e.Kind)

	_, err = ts.Profiles.Get(ctx, "grace@example.com")
	require.ErrorIs(t, err, profiles.ErrNotFound)
}

func TestSignupRequiresEmail(t *testing.T) {
	ctx, ts := newInstance(t)

	_, err := ts.Signup(ctx, signup.Request{FullName: "No Mail", Email: "   "})
	code, msg := errorOf(t, err)
	require.Equal(t, 400, code)
	require.Equal(t, "Email is required", msg)
	require.Empty(t, ts.Provider.Sent())
}

func TestSignupMalformedBody(t *testing.T) {
	_, ts := newInstance(t)

	res, err := http.Post(ts.URL()+"/api/auth/signup", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, 400, res.StatusCode)
	d, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"Email is required"}`, string(d))
}

func TestSignupProviderFailure(t *testing.T) {
	ctx, ts := newInstance(t)
	ts.Provider.InviteErr = &provider.Error{Status: 500, Message: "Error sending invite email"}

	_, err := ts.Signup(ctx, signup.Request{Email: "x@example.com"})
	code, msg := errorOf(t, err)
	require.Equal(t, 500, code)
	require.Equal(t, "Error sending invite email", msg)

	_, err = ts.Profiles.Get(ctx, "x@example.com")
	require.ErrorIs(t, err, profiles.ErrNotFound)
}

func TestSignupInviteWithoutUserID(t *testing.T) {
	ctx, ts := newInstance(t)
	ts.Provider.OmitUserID = true

	_, err := ts.Signup(ctx, signup.Request{Email: "x@example.com"})
	code, msg := errorOf(t, err)
	require.Equal(t, 500, code)
	require.Equal(t, "Invite succeeded but user_id missing.", msg)
}

func openMisconfigured(t *testing.T) *httptest.Server {
	s, err := server.Open(t.TempDir(), server.Options{
		Providers: provider.NewSettingsFactory(func() provider.Settings {
			return provider.Settings{}
		}),
	})
	require.NoError(t, err)
	hs := httptest.NewServer(s)
	t.Cleanup(func() {
		hs.Close()
		s.Close()
	})
	return hs
}

func TestSignupMisconfigured(t *testing.T) {
	hs := openMisconfigured(t)

	err := client.CallAPI(
		context.Background(),
		hs.URL,
		"POST", "api/auth/signup",
		nil,
		nil,
		client.JSONEncoder(signup.Request{Email: "x@example.com"}),
		nil,
		200,
	)
	code, msg := errorOf(t, err)
	require.Equal(t, 500, code)
	require.Contains(t, msg, "AUTH_PROVIDER_URL")
	require.Contains(t, msg, "AUTH_PROVIDER_SERVICE_KEY")
}

func TestCallbackMisconfiguredShowsDiagnostic(t *testing.T) {
	hs := openMisconfigured(t)

	res, err := http.Get(hs.URL + "/auth/callback")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, 500, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "text/html")
	d, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(d), "AUTH_PROVIDER_URL, AUTH_PROVIDER_PUBLIC_KEY")
}

func TestInviteLinkEstablishesSession(t *testing.T) {
	ctx, ts := newInstance(t)

	_, err := ts.Signup(ctx, signup.Request{Email: "ada@example.com"})
	require.NoError(t, err)

	res, err := ts.OpenLastEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/set-password?next=/select", res.Location)

	sr, err := ts.Session(ctx)
	require.NoError(t, err)
	require.True(t, sr.Authenticated)
	require.Equal(t, "ada@example.com", sr.Email)
	require.NotEmpty(t, sr.UserID)
}

func TestCallbackBridgePage(t *testing.T) {
	ctx, ts := newInstance(t)

	res, err := ts.Get(ctx, "/auth/callback?next=/welcome")
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Contains(t, res.Body, `name="next" value="/welcome"`)
	require.Contains(t, res.Body, `action="/auth/callback"`)
}

func TestCallbackWithoutTokensRedirectsToLogin(t *testing.T) {
	ctx, ts := newInstance(t)

	res, err := ts.OpenLink(ctx, ts.URL()+"/auth/callback?next=%2Fset-password%3Fnext%3D%2Fselect")
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, loginAfterCallback, res.Location)
	require.Equal(t, flow.NoTokensNotice, res.Notice)
}

func TestCallbackInvalidTokensRedirectsToLogin(t *testing.T) {
	ctx, ts := newInstance(t)

	res, err := ts.OpenLink(ctx, ts.URL()+"/auth/callback#access_token=garbage&refresh_token=garbage")
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, loginAfterCallback, res.Location)
	require.Equal(t, flow.InvalidTokensNotice, res.Notice)

	sr, err := ts.Session(ctx)
	require.NoError(t, err)
	require.False(t, sr.Authenticated)
}

func TestCallbackWithoutBridgeStateIgnoresTokens(t *testing.T) {
	ctx, ts := newInstance(t)
	_, err := ts.Signup(ctx, signup.Request{Email: "new@example.com"})
	require.NoError(t, err)
	e, _ := ts.Provider.LastEmail("new@example.com")
	u, err := url.Parse(e.Link)
	require.NoError(t, err)
	fragment, err := url.ParseQuery(u.EscapedFragment())
	require.NoError(t, err)

	res, err := ts.PostForm(ctx, "/auth/callback", url.Values{
		"access_token":  {fragment.Get("access_token")},
		"refresh_token": {fragment.Get("refresh_token")},
		"state":         {"forged"},
	})
	require.NoError(t, err)
	require.Equal(t, loginAfterCallback, res.Location)
	require.Equal(t, flow.NoTokensNotice, res.Notice)
}

func TestCallbackWithSessionSkipsTokens(t *testing.T) {
	ctx, ts := newInstance(t)

	_, err := ts.Signup(ctx, signup.Request{Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = ts.OpenLastEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	res, err := ts.Get(ctx, "/auth/callback?next=/dashboard")
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "/dashboard", res.Location)
}

func TestExchange(t *testing.T) {
	ctx, ts := newInstance(t)
	ts.Provider.Register("ada@example.com")

	code, err := ts.Provider.IssueCode("ada@example.com")
	require.NoError(t, err)

	res, err := ts.Get(ctx, "/auth/exchange?code="+url.QueryEscape(code)+"&next=/reports")
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "/reports", res.Location)

	sr, err := ts.Session(ctx)
	require.NoError(t, err)
	require.True(t, sr.Authenticated)
	require.Equal(t, "ada@example.com", sr.Email)

	t.Run("code is single use", func(t *testing.T) {
		res, err := ts.Get(ctx, "/auth/exchange?code="+url.QueryEscape(code))
		require.NoError(t, err)
		require.Equal(t, "/login?next=%2Fselect", res.Location)
		require.Equal(t, flow.ExpiredLinkNotice, res.Notice)
	})
}

func TestExchangeWithoutCode(t *testing.T) {
	ctx, ts := newInstance(t)

	res, err := ts.Get(ctx, "/auth/exchange?next=/reports")
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "/login?next=%2Freports", res.Location)
	require.Empty(t, res.Notice)
}

func TestOffsiteNextIsReplaced(t *testing.T) {
	ctx, ts := newInstance(t)

	res, err := ts.Get(ctx, "/auth/exchange?code=nope&next="+url.QueryEscape("https://evil.example.com/"))
	require.NoError(t, err)
	require.Equal(t, "/login?next=%2Fselect", res.Location)
}

func TestLogout(t *testing.T) {
	ctx, ts := newInstance(t)

	_, err := ts.Signup(ctx, signup.Request{Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = ts.OpenLastEmail(ctx, "ada@example.com")
	require.NoError(t, err)

	res, err := ts.Logout(ctx)
	require.NoError(t, err)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/login", res.Location)

	sr, err := ts.Session(ctx)
	require.NoError(t, err)
	require.False(t, sr.Authenticated)
}

func TestHealthz(t *testing.T) {
	ctx, ts := newInstance(t)

	res, err := ts.Get(ctx, "/healthz")
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, res.Body)
}
