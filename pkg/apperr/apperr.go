// Package apperr defines the typed application errors shared by all services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error so transport layers can map it to a status.
type Kind int

const (
	// KindNotFound means the referenced entity does not exist (or is soft-deleted).
	KindNotFound Kind = iota + 1
	// KindConflict means the operation lost to a competing state: capacity
	// exhausted, duplicate live session, duplicate pending request. Retryable.
	KindConflict
	// KindInvalidState means the operation is illegal in the entity's current
	// lifecycle state.
	KindInvalidState
	// KindForbidden means the caller lacks ownership or the required role.
	KindForbidden
	// KindUnauthorized means the caller's identity could not be established.
	KindUnauthorized
	// KindInvalid means the input failed validation.
	KindInvalid
)

// Error is a typed application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// InvalidState builds a KindInvalidState error.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds a KindInvalid validation error.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a typed error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or 0 if err is not an application error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
