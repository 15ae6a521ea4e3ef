package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/draganm/inviteflow/common/client"
)

// PostgREST upserts into a table exposed by a PostgREST compatible data API
// mounted under /rest/v1.
type PostgREST struct {
	baseURL    string
	serviceKey string
	table      string
}

func NewPostgREST(baseURL, serviceKey, table string) *PostgREST {
	if table == "" {
		table = "profiles"
	}
	return &PostgREST{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		table:      table,
	}
}

type postgrestError struct {
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	Code    string `json:"code"`
}

func (p *PostgREST) Upsert(ctx context.Context, pr Profile) error {
	h := http.Header{}
	h.Set("apikey", p.serviceKey)
	h.Set("Authorization", "Bearer "+p.serviceKey)
	h.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	q := url.Values{}
	q.Set("on_conflict", "email")

	err := client.CallAPI(
		ctx,
		p.baseURL,
		"POST", "rest/v1/"+p.table,
		h,
		q,
		client.JSONEncoder([]Profile{pr}),
		nil,
		http.StatusCreated,
	)

	se := &client.StatusError{}
	if errors.As(err, &se) {
		// merge-duplicates with return=minimal may answer 200 or 204 on update
		if se.StatusCode == http.StatusOK || se.StatusCode == http.StatusNoContent {
			return nil
		}
		pe := postgrestError{}
		if json.Unmarshal(se.Body, &pe) == nil && pe.Message != "" {
			return errors.New(pe.Message)
		}
		return errors.New(strings.TrimSpace(string(se.Body)))
	}

	return err
}
