// Package apperr is the error taxonomy shared by every layer. Handlers map a
// Kind to a status code; senders use KindTransient and KindRejected to decide
// whether a provider call is worth repeating.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	// KindValidation is input that parsed but broke a rule.
	KindValidation
	// KindBadRequest is input that could not be parsed.
	KindBadRequest
	// KindUnauthorized is a missing or invalid signature or token.
	KindUnauthorized
	// KindForbidden is a credential that was understood and refused.
	KindForbidden
	// KindTransient is a provider failure expected to succeed on retry.
	KindTransient
	// KindRejected is a provider refusing the call for good (4xx).
	KindRejected
)

var statusByKind = map[Kind]int{
	KindNotFound:     http.StatusNotFound,
	KindValidation:   http.StatusBadRequest,
	KindBadRequest:   http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindTransient:    http.StatusServiceUnavailable,
	KindRejected:     http.StatusBadGateway,
}

// Error carries a Kind and a client-safe Message. Err stays server-side.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind; unknown kinds are a 500.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Validation(message string) *Error   { return New(KindValidation, message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }

// Transient wraps a retryable provider failure.
func Transient(message string, err error) *Error { return Wrap(KindTransient, message, err) }

// Rejected wraps a provider refusal that retrying will not fix.
func Rejected(message string, err error) *Error { return Wrap(KindRejected, message, err) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

func IsTransient(err error) bool { return Is(err, KindTransient) }
