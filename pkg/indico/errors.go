package indico

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for errors.Is checks against the typed errors below
var (
	ErrAuth     = errors.New("indico: authentication failed")
	ErrNetwork  = errors.New("indico: network error")
	ErrNotFound = errors.New("indico: not found")
)

// AuthError is returned when the API token is invalid, expired or lacks
// access to the requested resource.
type AuthError struct {
	Path       string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.StatusCode == http.StatusForbidden {
		return fmt.Sprintf("access denied to %s", e.Path)
	}
	return fmt.Sprintf("invalid or expired API token (HTTP %d)", e.StatusCode)
}

// Is implements errors.Is support
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// NotFoundError is returned when a category or event id no longer exists
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NetworkError wraps transport failures, unexpected statuses and
// undecodable responses.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}
