package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/draganm/inviteflow/common/client"
	"github.com/draganm/inviteflow/profiles"
	"github.com/draganm/inviteflow/signup"
)

func alreadyHasAnAccount(ctx context.Context, email string) error {
	getState(ctx).si.Provider.Register(email)
	return nil
}

func signsUp(ctx context.Context, email string) error {
	s := getState(ctx)
	s.result, s.err = s.si.Signup(ctx, signup.Request{FullName: "Test User", Email: email})
	return nil
}

func theSignupShouldSucceedInMode(ctx context.Context, mode string) error {
	s := getState(ctx)
	if s.err != nil {
		return fmt.Errorf("signup failed: %w", s.err)
	}
	if string(s.result.Mode) != mode {
		return fmt.Errorf("expected mode %s, got %s", mode, s.result.Mode)
	}
	return nil
}

func theSignupShouldFailWith(ctx context.Context, status int, msg string) error {
	s := getState(ctx)
	se := &client.StatusError{}
	if !errors.As(s.err, &se) {
		return fmt.Errorf("expected the signup to be rejected, got %v", s.err)
	}
	if se.StatusCode != status {
		return fmt.Errorf("expected status %d, got %d", status, se.StatusCode)
	}
	er := struct {
		Error string `json:"error"`
	}{}
	err := json.Unmarshal(se.Body, &er)
	if err != nil {
		return fmt.Errorf("while decoding error response: %w", err)
	}
	if er.Error != msg {
		return fmt.Errorf("expected error %q, got %q", msg, er.Error)
	}
	return nil
}

func shouldHaveReceivedEmail(ctx context.Context, email, kind string) error {
	e, found := getState(ctx).si.Provider.LastEmail(email)
	if !found {
		return fmt.Errorf("no email was sent to %s", email)
	}
	if e.Kind != kind {
		return fmt.Errorf("expected %s email, got %s", kind, e.Kind)
	}
	return nil
}

func aProfileShouldExist(ctx context.Context, email string) error {
	p, err := getState(ctx).si.Profiles.Get(ctx, email)
	if err != nil {
		return err
	}
	if p.UserID == "" {
		return fmt.Errorf("profile of %s has no user id", email)
	}
	return nil
}

func noProfileShouldExist(ctx context.Context, email string) error {
	_, err := getState(ctx).si.Profiles.Get(ctx, email)
	if errors.Is(err, profiles.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("profile of %s exists", email)
}

func opensTheEmailedLink(ctx context.Context, email string) (err error) {
	s := getState(ctx)
	s.response, err = s.si.OpenLastEmail(ctx, email)
	return err
}

func theBrowserOpens(ctx context.Context, pathAndQuery string) (err error) {
	s := getState(ctx)
	s.response, err = s.si.Get(ctx, pathAndQuery)
	return err
}

func theBrowserForwardsAnEmptyFragment(ctx context.Context, pathAndQuery string) (err error) {
	s := getState(ctx)
	s.response, err = s.si.OpenLink(ctx, s.si.URL()+pathAndQuery)
	return err
}

func theBrowserShouldBeRedirectedTo(ctx context.Context, location string) error {
	r := getState(ctx).response
	if r.StatusCode < 300 || r.StatusCode >= 400 {
		return fmt.Errorf("expected a redirect, got status %d", r.StatusCode)
	}
	if r.Location != location {
		return fmt.Errorf("expected redirect to %s, got %s", location, r.Location)
	}
	return nil
}

func theNoticeShouldBe(ctx context.Context, notice string) error {
	r := getState(ctx).response
	if r.Notice != notice {
		return fmt.Errorf("expected notice %q, got %q", notice, r.Notice)
	}
	return nil
}

func theBrowserShouldHaveASessionFor(ctx context.Context, email string) error {
	sr, err := getState(ctx).si.Session(ctx)
	if err != nil {
		return err
	}
	if !sr.Authenticated || sr.Email != email {
		return fmt.Errorf("expected a session for %s, got %+v", email, sr)
	}
	return nil
}

func theBrowserShouldHaveNoSession(ctx context.Context) error {
	sr, err := getState(ctx).si.Session(ctx)
	if err != nil {
		return err
	}
	if sr.Authenticated {
		return fmt.Errorf("expected no session, got one for %s", sr.Email)
	}
	return nil
}

func theBrowserLogsOut(ctx context.Context) (err error) {
	s := getState(ctx)
	s.response, err = s.si.Logout(ctx)
	return err
}
