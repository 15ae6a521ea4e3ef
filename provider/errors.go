package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a call rejected by the identity provider.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// error codes the provider uses for an email that already has an account
var alreadyRegisteredCodes = map[string]struct{}{
	"email_exists":        {},
	"user_already_exists": {},
	"phone_exists":        {},
}

// IsAlreadyRegistered reports whether err means the account already exists.
// The structured error code wins; the message match covers providers that
// only send free text.
func IsAlreadyRegistered(err error) bool {
	if err == nil {
		return false
	}

	pe := &Error{}
	if errors.As(err, &pe) && pe.Code != "" {
		_, found := alreadyRegisteredCodes[pe.Code]
		return found
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already") || strings.Contains(msg, "registered")
}

// ConfigurationError reports provider settings that are not set.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("server misconfiguration: %s not set", strings.Join(e.Missing, ", "))
}

type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// decodeError turns a provider error response into an *Error. The provider
// has used several body shapes over time, all of them are accepted.
func decodeError(status int, body []byte) *Error {
	e := &Error{Status: status}

	eb := errorBody{}
	if json.Unmarshal(body, &eb) != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	e.Code = eb.ErrorCode
	if e.Code == "" && len(eb.Code) > 0 {
		var code string
		if json.Unmarshal(eb.Code, &code) == nil {
			e.Code = code
		}
	}

	for _, m := range []string{eb.Msg, eb.Message, eb.ErrorDescription, eb.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}

	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	return e
}
