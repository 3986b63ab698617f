// Package apperr defines the error taxonomy shared by services and the
// HTTP layer. Every check failure aborts the enclosing transaction and
// surfaces one of these kinds; storage failures propagate unwrapped.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindRateLimited
	KindInvalidArgument
)

// Error carries a kind and a caller-facing message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// NotFound reports a missing entity (unknown fortune type, unknown reading).
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden reports a missing subscription or purchase entitlement.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Conflict reports an empty balance, a consumed one-time good, or a
// missing warning acceptance.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// RateLimited reports an ad-reward ceiling hit.
func RateLimited(format string, args ...any) error {
	return &Error{Kind: KindRateLimited, Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports a malformed request shape.
func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown for errors outside the
// taxonomy (storage failures, contract violations).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
