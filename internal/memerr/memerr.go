// Package memerr defines the error taxonomy shared across the memory
// engine. Every component wraps failures in one of the kinds below so
// callers can branch with Is (or errors.As to *Error) instead of string
// matching.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies a memory-engine error.
type Kind string

const (
	KindStorage       Kind = "storage"
	KindSerialization Kind = "serialization"
	KindSecurity      Kind = "security"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindRateLimited   Kind = "rate_limited"
	KindTimeout       Kind = "timeout"
	KindCycleDetected Kind = "cycle_detected"
	KindDuplicate     Kind = "duplicate"
	KindSelfReference Kind = "self_reference"
	KindInvalidRegex  Kind = "invalid_regex"
)

// Error is the concrete error type produced by this module. Message is
// human-readable; Backend optionally names the storage tier that raised it.
type Error struct {
	Kind    Kind
	Message string
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Backend, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err's chain contains an *Error of kind k. Kind is
// not an error type, so errors.Is cannot test for a kind; this function
// does it through errors.As.
func Is(err error, k Kind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == k
	}
	return false
}

// New creates an *Error of the given kind.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind, preserving err in the chain.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithBackend tags the error with the backend/tier name that produced it.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// NotFound is a convenience constructor for the common "missing id" case.
func NotFound(entity, id string) *Error {
	return New(KindNotFound, "%s %q not found", entity, id)
}
