// Package httputils holds the small JSON-over-HTTP helpers used by the
// collaborator clients (vLLM, BCRP).
package httputils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status: %d", e.Code)
	}
	return fmt.Sprintf("bad status: %d: %s", e.Code, e.Body)
}

// Option adjusts an outgoing request.
type Option func(*http.Request)

// Bearer sets an "Authorization: Bearer" header.
func Bearer(token string) Option {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func do(ctx context.Context, client *http.Client, method, url string, body any, opts []Option) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	if client == nil {
		client = http.DefaultClient
	}
	r, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		defer r.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(r.Body, 512))
		return nil, &StatusError{Code: r.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return r, nil
}

func GetJSON(ctx context.Context, client *http.Client, url string, resp any, opts ...Option) error {
	r, err := do(ctx, client, http.MethodGet, url, nil, opts)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if resp != nil {
		return json.NewDecoder(r.Body).Decode(resp)
	}
	return nil
}

func PostJSON(ctx context.Context, client *http.Client, url string, body any, resp any, opts ...Option) error {
	r, err := do(ctx, client, http.MethodPost, url, body, opts)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if resp != nil {
		return json.NewDecoder(r.Body).Decode(resp)
	}
	return nil
}

// PostStream returns the open response body. The caller must close it.
func PostStream(ctx context.Context, client *http.Client, url string, body any, opts ...Option) (io.ReadCloser, error) {
	r, err := do(ctx, client, http.MethodPost, url, body, opts)
	if err != nil {
		return nil, err
	}
	return r.Body, nil
}
