// Package signup invites new users and sends a password reset link to
// addresses that already have an account.
package signup

import (
	"context"
	"net/url"
	"strings"

	"github.com/draganm/inviteflow/flow"
	"github.com/draganm/inviteflow/profiles"
	"github.com/draganm/inviteflow/provider"
	"github.com/go-logr/logr"
)

type Request struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// Normalize trims every field and lower-cases the email.
func (r Request) Normalize() Request {
	return Request{
		FullName: strings.TrimSpace(r.FullName),
		Phone:    strings.TrimSpace(r.Phone),
		Email:    strings.ToLower(strings.TrimSpace(r.Email)),
	}
}

type Mode string

const (
	ModeInvite Mode = "invite"
	ModeReset  Mode = "reset"
)

type Result struct {
	OK      bool   `json:"ok"`
	Mode    Mode   `json:"mode"`
	Message string `json:"message"`
}

const (
	InviteMessage = "Invite email sent."
	ResetMessage  = "Account exists. Password reset link sent."
)

type OutcomeKind int

const (
	Invited OutcomeKind = iota
	AlreadyRegistered
	Failed
)

// InviteOutcome classifies the answer to an invite call.
type InviteOutcome struct {
	Kind   OutcomeKind
	UserID string
	Err    error
}

func classifyInvite(u *provider.User, err error) InviteOutcome {
	switch {
	case err == nil:
		o := InviteOutcome{Kind: Invited}
		if u != nil {
			o.UserID = u.ID
		}
		return o
	case provider.IsAlreadyRegistered(err):
		return InviteOutcome{Kind: AlreadyRegistered, Err: err}
	default:
		return InviteOutcome{Kind: Failed, Err: err}
	}
}

// RedirectTarget is the link target put in invite and reset emails: the
// callback page, resuming at password setup, then at the default landing.
func RedirectTarget(siteURL string) string {
	return strings.TrimSuffix(siteURL, "/") + "/auth/callback?next=" + url.QueryEscape(flow.DefaultCallbackNext)
}

// Initiator is built per request with freshly constructed clients.
type Initiator struct {
	Provider provider.IdentityProvider
	Profiles profiles.Store
	SiteURL  string
	Log      logr.Logger
}

// Initiate sends exactly one email, invite or reset, and upserts the profile
// only after a confirmed invite. Nothing is retried.
func (i *Initiator) Initiate(ctx context.Context, req Request) (*Result, error) {
	req = req.Normalize()
	if req.Email == "" {
		return nil, &ValidationError{Message: "Email is required"}
	}

	redirectTo := RedirectTarget(i.SiteURL)
	log := i.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithValues("email", req.Email)

	o := classifyInvite(i.Provider.InviteUserByEmail(ctx, req.Email, redirectTo))

	switch o.Kind {
	case AlreadyRegistered:
		log.Info("account exists, sending reset link", "reason", o.Err.Error())
		err := i.Provider.ResetPasswordForEmail(ctx, req.Email, redirectTo)
		if err != nil {
			return nil, providerError("reset password", err)
		}
		return &Result{OK: true, Mode: ModeReset, Message: ResetMessage}, nil
	case Failed:
		return nil, providerError("invite user", o.Err)
	}

	if o.UserID == "" {
		return nil, &InternalError{Message: "Invite succeeded but user_id missing."}
	}

	err := i.Profiles.Upsert(ctx, profiles.Profile{
		UserID:   o.UserID,
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
	})
	if err != nil {
		return nil, providerError("upsert profile", err)
	}

	log.Info("invite sent", "userID", o.UserID)

	return &Result{OK: true, Mode: ModeInvite, Message: InviteMessage}, nil
}
