package server

import (
	"encoding/json"
	"net/http"

	"github.com/draganm/inviteflow/signup"
)

const maxSignupBodySize = 64 * 1024

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var err error

	defer func() {
		handleHttpError(w, err, s.log)
	}()

	req := signup.Request{}

	// a malformed body counts as an empty one
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignupBodySize)).Decode(&req)

	req = req.Normalize()
	if req.Email == "" {
		err = &signup.ValidationError{Message: "Email is required"}
		return
	}

	idp, err := s.providers.Admin()
	if err != nil {
		return
	}

	store, err := s.profiles()
	if err != nil {
		return
	}

	in := &signup.Initiator{
		Provider: idp,
		Profiles: store,
		SiteURL:  s.config().GetSiteURL(r),
		Log:      s.log.WithName("signup"),
	}

	res, err := in.Initiate(r.Context(), req)
	if err != nil {
		return
	}

	writeJSON(w, http.StatusOK, res)
}
