package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 20 * time.Second

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// APIError is a non-2xx answer from an upstream HTTP collaborator.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("upstream api error (%d, %s): %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("upstream api error (%d, %s)", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("upstream api error (%d): %s", e.StatusCode, e.Message)
	}
}

// Retryable reports whether another endpoint might answer differently.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type apiErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiErrorBody `json:"error,omitempty"`
}

// newHTTPClientWithTimeout falls back to the package default when d is
// non-positive.
func newHTTPClientWithTimeout(d time.Duration) *http.Client {
	if d <= 0 {
		d = defaultHTTPTimeout
	}
	return &http.Client{Timeout: d}
}

func decodeAPIError(body []byte) *apiErrorBody {
	if len(body) == 0 {
		return nil
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}

func buildAPIError(statusCode int, body []byte) error {
	if decoded := decodeAPIError(body); decoded != nil && (decoded.Code != "" || decoded.Message != "") {
		return &APIError{StatusCode: statusCode, Code: decoded.Code, Message: decoded.Message}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return &APIError{StatusCode: statusCode, Message: snippet}
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return err != nil
}
