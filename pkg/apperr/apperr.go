// Package apperr defines the error-kind taxonomy shared by every handler so
// that HTTP status mapping happens in one place instead of being hand-rolled
// per endpoint.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindIntrovertBlock  Kind = "introvert_block"
	KindTransientDB     Kind = "transient_db"
	KindPushGone        Kind = "push_gone"
	KindPushTransient   Kind = "push_transient"
)

// Error is the typed error every component returns instead of a bare error
// string, so that handlers can map Kind to an HTTP status without
// inspecting message text.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Status maps a Kind to the HTTP status code defined in the error-handling
// design: validation/unauthorized/forbidden/not_found/conflict/payload_too_large
// map directly; transient_db, push_gone, and push_transient are server-side
// concerns that never reach an HTTP caller with a distinct code beyond 500.
func Status(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindIntrovertBlock:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
