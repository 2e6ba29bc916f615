// Package apierr defines the closed error-kind taxonomy shared by every
// service and inbound adapter, and its mapping to HTTP status codes.
// Services never return a bare error to the HTTP layer; they return (or
// wrap) one of these kinds so the transport never has to inspect a
// store-native or library-native error type to pick a status code.
package apierr

import (
	"errors"
	"net/http"
)

// Kind is a closed enum of client-facing error categories.
type Kind int

const (
	// KindMalformedCredential means the bearer string did not parse.
	KindMalformedCredential Kind = iota
	// KindUnauthorized means the key was missing, disabled, expired, or
	// the secret did not match. Never distinguished further to clients.
	KindUnauthorized
	// KindRateLimited means the per-key per-minute threshold was exceeded.
	KindRateLimited
	// KindNotFound means an admin reference to a missing key or project.
	KindNotFound
	// KindAlreadyExists means an admin create hit a conflict.
	KindAlreadyExists
	// KindValidationError means an admin request body failed validation.
	KindValidationError
	// KindTransient means the store was unavailable or timed out.
	KindTransient
	// KindPermanent means corrupted stored data or a programming defect.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindMalformedCredential:
		return "malformed_credential"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindValidationError:
		return "validation_error"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Code is the wire-level error code string. MalformedCredential and
// Unauthorized both surface as "unauthorized", so every 401 denial from
// validate-key carries the same code whatever its cause.
func (k Kind) Code() string {
	switch k {
	case KindMalformedCredential, KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindValidationError:
		return "validation_error"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "internal_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps a Kind to the status code spec.md §7 assigns it.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMalformedCredential, KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindValidationError:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindPermanent:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is a Kind carrying an internal cause. The cause is never rendered
// to a client; callers that need to surface a message use Message().
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an internal cause. The
// cause is available via errors.Unwrap for logging, never for the
// client-facing message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// As extracts the Kind of err if it is, or wraps, an *Error. ok is false
// for any error that was never classified into the taxonomy.
func As(err error) (Kind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}
