// Package vaultapi is the HTTP client for the vault server API: account
// endpoints, token rotation and encrypted file transfer. It classifies HTTP
// failures into sentinel errors and retries only idempotent reads.
package vaultapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, vaultapi.ErrUnauthorized) to check.
var (
	ErrBadRequest    = errors.New("vaultapi: bad request")
	ErrUnauthorized  = errors.New("vaultapi: unauthorized")
	ErrForbidden     = errors.New("vaultapi: forbidden")
	ErrNotFound      = errors.New("vaultapi: not found")
	ErrConflict      = errors.New("vaultapi: conflict")
	ErrTooLarge      = errors.New("vaultapi: payload too large")
	ErrThrottled     = errors.New("vaultapi: throttled")
	ErrServerError   = errors.New("vaultapi: server error")
	ErrUnexpected    = errors.New("vaultapi: unexpected status")
	ErrTransport     = errors.New("vaultapi: transport failure")
	ErrInvalidResult = errors.New("vaultapi: invalid response")
)

// APIError wraps a sentinel error with HTTP status code, request ID and the
// server's message.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("vaultapi: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("vaultapi: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from err, or 0 if err carries none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpected
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// errorMessage pulls the human-readable message out of an error body. The
// server answers {"message": "..."}; anything else is returned trimmed.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}

	return strings.TrimSpace(string(body))
}
