package roles

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("roles: no active session")
	ErrForbidden       = errors.New("roles: forbidden")
	ErrNotMember       = errors.New("roles: not a member of organization")
	ErrNotFound        = errors.New("roles: not found")
	ErrInvalidInput    = errors.New("roles: invalid input")
	ErrStale           = errors.New("roles: active organization changed during resolution")
)

// RemoteError is a failure reported by a remote authority.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("roles: remote error (status %d)", e.Status)
	}
	return fmt.Sprintf("roles: remote error (status %d): %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *RemoteError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthenticated
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrInvalidInput
	default:
		return nil
	}
}

// HTTPStatus returns the status an API should answer with for err.
func HTTPStatus(err error) int {
	var remote *RemoteError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStale):
		return http.StatusConflict
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
