package server

import (
	"errors"
	"net/http"

	"github.com/draganm/inviteflow/provider"
	"github.com/draganm/inviteflow/signup"
	"github.com/go-logr/logr"
)

type errorWithCode struct {
	err  error
	code int
}

func newErrorWithCode(err error, code int) *errorWithCode {
	return &errorWithCode{err, code}
}

func (e *errorWithCode) Error() string {
	return e.err.Error()
}

func (e *errorWithCode) Unwrap() error {
	return e.err
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps an error to the status code of the response.
func statusOf(err error) int {
	ec := &errorWithCode{}
	if errors.As(err, &ec) {
		return ec.code
	}

	ve := &signup.ValidationError{}
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func handleHttpError(w http.ResponseWriter, err error, log logr.Logger) {
	if err == nil {
		return
	}

	code := statusOf(err)
	msg := err.Error()

	ce := &provider.ConfigurationError{}
	if errors.As(err, &ce) {
		log.Error(err, "server is not configured", "missing", ce.Missing)
	}

	pe := &signup.ProviderError{}
	if errors.As(err, &pe) {
		log.Error(pe.Err, "provider call failed", "op", pe.Op)
	}

	if code >= 500 && msg == "" {
		msg = "Server error"
	}

	if code < 500 {
		log.Info("request rejected", "status", code, "reason", msg)
	}

	writeJSON(w, code, errorResponse{Error: msg})
}
