// Package transport executes vendor API requests for integration clients and
// classifies failures into go-errors envelopes.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Request is one outbound vendor API call.
type Request struct {
	Method               string
	URL                  string
	Query                map[string]string
	Headers              map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// Adapter executes a Request over one protocol.
type Adapter interface {
	Kind() string
	Do(ctx context.Context, req Request) (Response, error)
}

func (r Response) Success() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

func (r Response) Unauthorized() bool {
	return r.StatusCode == http.StatusUnauthorized
}

// DecodeJSON unmarshals the response body into target.
func (r Response) DecodeJSON(target any) error {
	if len(strings.TrimSpace(string(r.Body))) == 0 {
		return transportError(
			"transport: response body is empty",
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": r.StatusCode},
		)
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode json response",
			http.StatusBadGateway,
			map[string]any{"status_code": r.StatusCode},
		)
	}
	return nil
}

// Err returns nil for 2xx responses and a classified go-errors envelope
// otherwise.
func (r Response) Err() error {
	if r.Success() {
		return nil
	}
	category := statusCategory(r.StatusCode)
	return transportError(
		fmt.Sprintf("transport: vendor returned status %d", r.StatusCode),
		category,
		r.StatusCode,
		map[string]any{"status_code": r.StatusCode, "body": truncateBody(r.Body)},
	)
}

func statusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit]
	}
	return text
}
