package musicapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from an upstream endpoint. The raw body is
// kept so callers can attach the upstream diagnostic to their own errors.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       []byte
}

func (e *APIError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("upstream error: status %d from %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// Details decodes the upstream payload for inclusion in an outward error
// response. Falls back to the raw string when the body is not JSON.
func (e *APIError) Details() any {
	if len(e.Body) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(e.Body, &decoded); err != nil {
		return string(e.Body)
	}
	return decoded
}

// AuthError signals a failed credential exchange. Payload holds the last
// upstream error body, if any.
type AuthError struct {
	Op      string
	Payload []byte
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Details mirrors APIError.Details for the outward error response.
func (e *AuthError) Details() any {
	if len(e.Payload) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(e.Payload, &decoded); err != nil {
		return string(e.Payload)
	}
	return decoded
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return isStatus(err, http.StatusNotFound)
}

// IsAuthRejection reports whether err is an upstream 401 or 403.
func IsAuthRejection(err error) bool {
	return isStatus(err, http.StatusUnauthorized) || isStatus(err, http.StatusForbidden)
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	return isStatus(err, http.StatusTooManyRequests)
}

// IsServerError reports whether err is an upstream 5xx.
func IsServerError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == status
	}
	return false
}

func payloadOf(err error) []byte {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body
	}
	return nil
}
