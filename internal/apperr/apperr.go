// Package apperr defines the closed error taxonomy the HTTP layer maps to
// status codes. Every package below the transport edge returns sentinel
// errors from here (wrapped with %w for context) instead of leaking driver
// or cipher error strings to a response body.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindTwoFactorRequired  Kind = "two_factor_required"
	KindTooManyAttempts    Kind = "too_many_attempts"
	KindAccountLocked      Kind = "account_locked"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindBadRequest         Kind = "bad_request"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// Error is a taxonomy-tagged error carrying optional structured detail for
// the response body (e.g. retry_after_seconds, locked_until).
type Error struct {
	Kind   Kind
	Msg    string
	Detail map[string]any
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

func WithDetail(kind Kind, msg string, detail map[string]any) *Error {
	return &Error{Kind: kind, Msg: msg, Detail: detail}
}

// As extracts an *Error from err, or reports false.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Internal wraps an unexpected store/cipher failure as a KindInternal error,
// the only place a driver error message is allowed to travel — callers must
// still log the original err and never return it to a client response.
func Internal(op string, err error) *Error {
	return Wrap(KindInternal, op+" failed", err)
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
