// Package utils provides low-level helpers shared across the decoder: pooled
// scratch buffers, overflow-checked arithmetic, and a small structured error
// type that lets callers branch on failure kind instead of matching strings.
package utils

import (
	"errors"
	"fmt"
)

// Kind classifies a TraceError so callers (in particular the CLI driver) can
// select an exit code or a fatal/soft policy without parsing messages.
type Kind int

const (
	// KindInternal covers programmer errors and anything not classified below.
	KindInternal Kind = iota
	// KindSectionMissing means the named ELF section was not present.
	KindSectionMissing
	// KindByteorderUndetectable means C1 returned "unknown" or failed outright.
	KindByteorderUndetectable
	// KindShortRead means the stream yielded fewer than ptr_size bytes while
	// starting a new record.
	KindShortRead
	// KindEndOfStream means the stream ran out while parsing a record's
	// arguments.
	KindEndOfStream
	// KindFormatError means rendering failed (bad spec, missing argument).
	// Format errors are soft: the driver logs and continues.
	KindFormatError
	// KindTestMismatch means captured test output differed from expected.
	KindTestMismatch
)

// String renders the kind for log lines and error messages.
func (k Kind) String() string {
	switch k {
	case KindSectionMissing:
		return "section-missing"
	case KindByteorderUndetectable:
		return "byteorder-undetectable"
	case KindShortRead:
		return "short-read"
	case KindEndOfStream:
		return "end-of-stream"
	case KindFormatError:
		return "format-error"
	case KindTestMismatch:
		return "test-mismatch"
	default:
		return "internal"
	}
}

// TraceError is a structured decoder error: a Kind for programmatic
// dispatch, a human Context describing where it happened, and an optional
// wrapped Cause.
type TraceError struct {
	Kind    Kind
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *TraceError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
}

// Unwrap provides compatibility with errors.Is/errors.As.
func (e *TraceError) Unwrap() error {
	return e.Cause
}

// WrapError creates a contextual, kind-tagged error. Returns nil if cause is
// nil, so it is safe to call unconditionally after a fallible operation.
func WrapError(kind Kind, context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &TraceError{Kind: kind, Context: context, Cause: cause}
}

// NewError creates a kind-tagged error with no wrapped cause.
func NewError(kind Kind, context string) error {
	return &TraceError{Kind: kind, Context: context}
}

// IsKind reports whether err is a TraceError (at any wrap depth) of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var te *TraceError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
