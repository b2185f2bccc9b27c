package errors

import (
	"errors"
	"fmt"
)

// TMError is the structured error type for HybridTM.
type TMError struct {
	// Kind classifies the error.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// EntryID is the canonical entry ID involved, if known.
	EntryID string

	// Path is the file path involved, if applicable.
	Path string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TMError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.EntryID != "" {
		msg += fmt.Sprintf(" (entry %s)", e.EntryID)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (file %s)", e.Path)
	}
	return msg
}

// Unwrap returns the underlying cause for error chain support.
func (e *TMError) Unwrap() error {
	return e.Cause
}

// Is matches TMErrors by kind, so errors.Is(err, &TMError{Kind: KindNotFound})
// works across wrapping.
func (e *TMError) Is(target error) bool {
	if t, ok := target.(*TMError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithEntry attaches the canonical entry ID. Returns the error for chaining.
func (e *TMError) WithEntry(id string) *TMError {
	e.EntryID = id
	return e
}

// WithPath attaches the file path. Returns the error for chaining.
func (e *TMError) WithPath(path string) *TMError {
	e.Path = path
	return e
}

// New creates a TMError with the given kind and message.
func New(kind Kind, message string) *TMError {
	return &TMError{Kind: kind, Message: message}
}

// Newf creates a TMError with a formatted message.
func Newf(kind Kind, format string, args ...any) *TMError {
	return &TMError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a TMError from an existing error. Returns nil for a nil cause.
func Wrap(kind Kind, message string, cause error) *TMError {
	if cause == nil {
		return nil
	}
	return &TMError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the kind from an error chain.
// Returns KindInternal for errors that are not TMErrors.
func KindOf(err error) Kind {
	var te *TMError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &TMError{Kind: kind})
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	var te *TMError
	if errors.As(err, &te) {
		return retryableKinds[te.Kind]
	}
	return false
}

// IsRecoverable reports whether err is a per-row error that should be
// logged and skipped instead of aborting the surrounding operation.
func IsRecoverable(err error) bool {
	var te *TMError
	if errors.As(err, &te) {
		return recoverableKinds[te.Kind]
	}
	return false
}
