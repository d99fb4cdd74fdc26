package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for domain operations
var (
	// ErrNotFound indicates the requested entity does not exist locally
	ErrNotFound = errors.New("entity not found")

	// ErrServerOffline indicates the API server is unreachable
	ErrServerOffline = errors.New("api server is unreachable")

	// ErrOffline indicates the network monitor reports no connectivity
	ErrOffline = errors.New("device is offline")

	// ErrAuthFailed indicates the session token was rejected
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrNoSession indicates no user is logged in
	ErrNoSession = errors.New("no active session")

	// ErrValidation indicates a record failed local validation
	ErrValidation = errors.New("validation failed")
)

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d %s", e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

// Conflict reports whether the server rejected the write as conflicting.
func (e *APIError) Conflict() bool {
	return e.StatusCode == http.StatusConflict
}

// NotFound reports whether the server does not know the target entity.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}
