package fetchcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotOK is returned by Text and JSON when the response status is not 2xx.
var ErrNotOK = errors.New("response status is not ok")

// Response is a fully buffered HTTP response. Every Response handed out by the
// Cache is a separate copy; reading one never affects another.
type Response struct {
	// URL is the final URL after redirects, not necessarily the requested one.
	URL        string
	StatusCode int
	Header     http.Header

	body []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Clone returns an independent copy of r.
func (r *Response) Clone() *Response {
	return &Response{
		URL:        r.URL,
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		body:       bytes.Clone(r.body),
	}
}

// Body returns a fresh reader over the response body.
func (r *Response) Body() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(r.body))
}

// Bytes returns the raw body regardless of status.
func (r *Response) Bytes() []byte {
	return r.body
}

// Text returns the body as a string. It fails with ErrNotOK on a non-2xx status.
func (r *Response) Text() (string, error) {
	if !r.OK() {
		return "", fmt.Errorf("GET %s: status %d: %w", r.URL, r.StatusCode, ErrNotOK)
	}
	return string(r.body), nil
}

// JSON decodes the body into v. It fails with ErrNotOK on a non-2xx status.
func (r *Response) JSON(v any) error {
	if !r.OK() {
		return fmt.Errorf("GET %s: status %d: %w", r.URL, r.StatusCode, ErrNotOK)
	}
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("GET %s: decoding json: %w", r.URL, err)
	}
	return nil
}
