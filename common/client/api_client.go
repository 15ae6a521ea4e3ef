package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

// StatusError is returned by CallAPI when the response status differs from
// the expected one. Body holds the raw response so callers can decode the
// remote error format.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s for %s %s: %s", e.Status, e.Method, e.Path, string(e.Body))
}

func CallAPI(
	ctx context.Context,
	baseURL, method, pth string,
	header http.Header,
	query url.Values,
	bodyEncoder func() (io.Reader, error),
	responseDecoder func(r io.Reader) error,
	expectedStatus int,
) error {
	bu, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("while parsing server base url: %w", err)
	}

	bu.Path = path.Join("/", bu.Path, pth)
	if query != nil {
		bu.RawQuery = query.Encode()
	}

	var body io.Reader

	if bodyEncoder != nil {
		body, err = bodyEncoder()
		if err != nil {
			return fmt.Errorf("while encoding body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, bu.String(), body)
	if err != nil {
		return fmt.Errorf("while creating request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if bodyEncoder != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("while performing %s %s request: %w", method, pth, err)
	}

	defer res.Body.Close()

	if res.StatusCode != expectedStatus {
		bod, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("while reading response body: %w", err)
		}
		return &StatusError{
			Method:     method,
			Path:       pth,
			StatusCode: res.StatusCode,
			Status:     res.Status,
			Body:       bod,
		}
	}

	if responseDecoder == nil {
		return nil
	}

	return responseDecoder(res.Body)

}
