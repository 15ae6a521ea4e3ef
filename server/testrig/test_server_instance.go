package testrig

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/draganm/inviteflow/common/client"
	"github.com/draganm/inviteflow/profiles"
	"github.com/draganm/inviteflow/provider"
	"github.com/draganm/inviteflow/server"
	"github.com/draganm/inviteflow/signup"
	"github.com/go-logr/logr"
	"golang.org/x/net/publicsuffix"
)

// TestServerInstance runs a server against the mock identity provider and
// drives it like a browser: cookies are kept, redirects are not followed.
type TestServerInstance struct {
	s        *server.Server
	hs       *httptest.Server
	Provider *provider.Mock
	Profiles *profiles.BoltedStore
	client   *http.Client
}

// Response is a request outcome as seen by the browser.
type Response struct {
	StatusCode int
	Location   string
	Notice     string
	Body       string
}

func NewTestServerInstance(ctx context.Context, log logr.Logger) (*TestServerInstance, error) {
	td, err := os.MkdirTemp("", "")
	if err != nil {
		return nil, fmt.Errorf("could not open test server instance dir: %w", err)
	}

	mp := provider.NewMock()

	s, err := server.Open(td, server.Options{
		Providers: provider.StaticFactory{Provider: mp},
		Log:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("could not start test server instance: %w", err)
	}

	ps, err := profiles.NewBoltedStore(s.DB())
	if err != nil {
		return nil, fmt.Errorf("could not open profile store: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("could not create cookie jar: %w", err)
	}

	hs := httptest.NewServer(s)

	go func() {
		<-ctx.Done()
		hs.Close()
		s.Close()
		os.RemoveAll(td)
	}()

	return &TestServerInstance{
		s:        s,
		hs:       hs,
		Provider: mp,
		Profiles: ps,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (ts *TestServerInstance) URL() string {
	return ts.hs.URL
}

// Signup calls the signup API. A rejection is returned as *client.StatusError.
func (ts *TestServerInstance) Signup(ctx context.Context, req signup.Request) (*signup.Result, error) {
	res := &signup.Result{}
	err := client.CallAPI(
		ctx,
		ts.hs.URL,
		"POST", "api/auth/signup",
		nil,
		nil,
		client.JSONEncoder(req),
		client.JSONDecoder(res),
		200,
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Session reports the session the browser currently holds.
func (ts *TestServerInstance) Session(ctx context.Context) (*server.SessionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ts.hs.URL+"/api/auth/session", nil)
	if err != nil {
		return nil, err
	}

	res, err := ts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("while getting session: %w", err)
	}
	defer res.Body.Close()

	sr := &server.SessionResponse{}
	err = client.JSONDecoder(sr)(res.Body)
	if err != nil {
		return nil, fmt.Errorf("while decoding session: %w", err)
	}

	return sr, nil
}

func (ts *TestServerInstance) do(req *http.Request) (*Response, error) {
	res, err := ts.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("while performing %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	d, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("while reading response body: %w", err)
	}

	r := &Response{
		StatusCode: res.StatusCode,
		Location:   res.Header.Get("Location"),
		Body:       string(d),
	}

	for _, c := range res.Cookies() {
		if c.Name == "inviteflow_notice" {
			r.Notice = server.Notice(c)
		}
	}

	return r, nil
}

// Get requests a path of the server; the fragment, if any, stays in the
// browser.
func (ts *TestServerInstance) Get(ctx context.Context, pathAndQuery string) (*Response, error) {
	u, err := url.Parse(pathAndQuery)
	if err != nil {
		return nil, err
	}
	u.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, "GET", ts.hs.URL+u.RequestURI(), nil)
	if err != nil {
		return nil, err
	}

	return ts.do(req)
}

func (ts *TestServerInstance) PostForm(ctx context.Context, pth string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", ts.hs.URL+pth, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

var hiddenInput = regexp.MustCompile(`name="(next|state)" value="([^"]*)"`)

// OpenLink opens an emailed link the way a browser does: the server sees
// the path and query, and the bridge page forwards the fragment.
func (ts *TestServerInstance) OpenLink(ctx context.Context, link string) (*Response, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("while parsing link: %w", err)
	}

	res, err := ts.Get(ctx, u.RequestURI())
	if err != nil {
		return nil, err
	}

	if res.StatusCode != 200 {
		return res, nil
	}

	form := url.Values{}
	for _, m := range hiddenInput.FindAllStringSubmatch(res.Body, -1) {
		form.Set(m[1], html.UnescapeString(m[2]))
	}

	if _, found := form["state"]; !found {
		return nil, errors.New("bridge page has no state field")
	}

	fragment, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		return nil, fmt.Errorf("while parsing fragment: %w", err)
	}
	form.Set("access_token", fragment.Get("access_token"))
	form.Set("refresh_token", fragment.Get("refresh_token"))

	return ts.PostForm(ctx, u.Path, form)
}

// OpenLastEmail opens the link of the last email sent to address.
func (ts *TestServerInstance) OpenLastEmail(ctx context.Context, address string) (*Response, error) {
	e, found := ts.Provider.LastEmail(address)
	if !found {
		return nil, fmt.Errorf("no email was sent to %s", address)
	}
	return ts.OpenLink(ctx, e.Link)
}

func (ts *TestServerInstance) Logout(ctx context.Context) (*Response, error) {
	return ts.PostForm(ctx, "/auth/logout", url.Values{})
}
