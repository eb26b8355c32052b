// Package apperr defines the application error taxonomy and its HTTP
// mapping. Collaborator errors (storage provider, token store, database)
// are translated into these kinds at the service boundary so that
// provider-specific detail never reaches a client.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a stable error category exposed to clients.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthorized       Kind = "unauthorized"
	KindNotFound           Kind = "not_found"
	KindPermissionDenied   Kind = "permission_denied"
	KindConflict           Kind = "conflict"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

// Error carries a taxonomy kind, a user-facing message, and the
// underlying cause for logging. The cause is never rendered to clients.
type Error struct {
	Err     error
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that retains err as its cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Convenience constructors.

func InvalidArgument(message string) *Error    { return New(KindInvalidArgument, message) }
func InvalidCredentials(message string) *Error { return New(KindInvalidCredentials, message) }
func Unauthorized(message string) *Error       { return New(KindUnauthorized, message) }
func NotFound(message string) *Error           { return New(KindNotFound, message) }
func PermissionDenied(message string) *Error   { return New(KindPermissionDenied, message) }
func Conflict(message string) *Error           { return New(KindConflict, message) }
func Unavailable(message string) *Error        { return New(KindUnavailable, message) }
func Internal(message string) *Error           { return New(KindInternal, message) }

// KindOf extracts the taxonomy kind from an error chain.
// Unrecognized errors are KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a taxonomy kind to an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
