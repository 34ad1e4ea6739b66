// Package apperrors classifies failures into the small set of kinds the
// HTTP layer and job retry policy care about. Background jobs and
// adapters return these; only handlers translate kinds to status codes.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a coarse failure classification.
type Kind string

const (
	KindAuth                Kind = "auth_error"
	KindRateLimited         Kind = "rate_limited"
	KindPlatformTransient   Kind = "platform_transient"
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindDataIntegrity       Kind = "data_integrity"
	KindMissingPlatformData Kind = "missing_platform_data"
	KindInternal            Kind = "internal"
)

// Error carries a kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from an error chain; unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a job should be retried after err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindPlatformTransient, KindInternal:
		return true
	default:
		return false
	}
}
