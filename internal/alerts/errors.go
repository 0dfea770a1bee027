package alerts

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify any error returned by this module.
var (
	ErrNetwork             = errors.New("network error")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation error")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrRefreshRejected     = errors.New("refresh token rejected")
	ErrDecode              = errors.New("malformed server payload")
	ErrServer              = errors.New("server error")
	ErrLocationUnavailable = errors.New("location unavailable")
)

// RemoteError is a failure reported by the remote service.
// Detail carries the structured {"detail": ...} message when one was sent.
type RemoteError struct {
	Kind   error
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v (status %d)", e.Kind, e.Status)
}

func (e *RemoteError) Unwrap() error { return e.Kind }

// RequiresLogin reports whether err means the user must authenticate again.
func RequiresLogin(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRefreshRejected) ||
		errors.Is(err, ErrNoRefreshToken)
}
