// Package faults defines the stable error taxonomy shared by the broadcast,
// confirmation and delivery layers. Every rejected action surfaces a Kind
// plus a human-readable reason so callers can branch without string matching.
package faults

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-matchable error category.
type Kind string

const (
	NotFound            Kind = "not_found"
	Unauthorized        Kind = "unauthorized"
	InvalidState        Kind = "invalid_state"
	Expired             Kind = "expired"
	ValidationFailed    Kind = "validation_failed"
	ExecutionFailed     Kind = "execution_failed"
	ProviderUnavailable Kind = "provider_unavailable"
	BroadcastFailed     Kind = "broadcast_failed"
)

// Error carries a Kind, a reason, and optionally the parameters or fields
// the reason refers to.
type Error struct {
	Kind   Kind
	Reason string
	Fields []string
	cause  error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (fields: %v)", e.Kind, e.Reason, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a taxonomy error with a formatted reason.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// WithFields attaches the offending field names to the error.
func (e *Error) WithFields(fields ...string) *Error {
	e.Fields = append(e.Fields, fields...)
	return e
}

// Wrap builds a taxonomy error around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the Kind from err, or an empty Kind for untyped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
