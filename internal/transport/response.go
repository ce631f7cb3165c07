package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"tasklist/internal/apierr"
)

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Null reports whether the reply carries no payload (204 or empty body).
func (r *Response) Null() bool {
	return r == nil || r.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(r.Body)) == 0
}

// Decode unmarshals the payload into v. A null payload leaves v untouched.
func (r *Response) Decode(v any) error {
	if r.Null() {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		ce := apierr.New(apierr.KindUnknown, "malformed response from server")
		ce.Retryable = false
		ce.StatusCode = r.StatusCode
		ce.Cause = err
		return ce
	}
	return nil
}

// Do executes a call and decodes the payload into a T. A null payload yields nil.
func Do[T any](ctx context.Context, d Doer, method, path string, body any) (*T, error) {
	resp, err := d.Execute(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.Null() {
		return nil, nil
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
