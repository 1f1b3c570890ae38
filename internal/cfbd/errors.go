package cfbd

import (
	"errors"
	"net/http"
)

// Error types for the College Football Data API.
const (
	ErrInvalidParams = "invalid_params"
	ErrUnauthorized  = "unauthorized"
	ErrRateLimited   = "rate_limited"
	ErrUnavailable   = "unavailable"
	ErrParseError    = "parse_error"
	// ErrUpstream is a 4xx the API returned for a request this client built.
	ErrUpstream      = "upstream_error"
)

// APIError represents an error from the College Football Data API.
type APIError struct {
	Type       string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt could succeed.
func (e *APIError) retryable() bool {
	switch e.Type {
	case ErrUnavailable:
		return true
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// IsType reports whether err is an *APIError of the given type.
func IsType(err error, errType string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == errType
}

func invalidParams(msg string) error {
	return &APIError{Type: ErrInvalidParams, Message: msg}
}

// errorForStatus maps a non-200 status code onto an error type.
func errorForStatus(status int, body string) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    "unexpected status code: " + http.StatusText(status),
	}
	if body != "" {
		apiErr.Message += ", body: " + body
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.Type = ErrUnauthorized
		apiErr.Message = "API key rejected (" + http.StatusText(status) + ")"
	case status == http.StatusTooManyRequests:
		apiErr.Type = ErrRateLimited
	case status >= 500:
		apiErr.Type = ErrUnavailable
	default:
		apiErr.Type = ErrUpstream
	}
	return apiErr
}
