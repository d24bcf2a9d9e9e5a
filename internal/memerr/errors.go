// Package memerr defines the error taxonomy shared by every memcore
// component. Each error carries a machine-readable Kind plus a human
// message, following the teacher's AdapterError shape but specialised to
// the kinds the cognitive memory core actually raises.
package memerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for programmatic handling (retry policy,
// HTTP status mapping, etc.) without string matching.
type Kind string

const (
	// KindValidation marks malformed input: empty text, invalid sector
	// name, wrong vector dimension, negative weight. Never retried.
	KindValidation Kind = "VALIDATION"

	// KindNetwork marks a transport failure, optionally carrying an HTTP
	// status. Retried inside the embedding queue; surfaced to callers on
	// direct (non-queued) calls.
	KindNetwork Kind = "NETWORK"

	// KindTimeout marks an operation that exceeded its deadline.
	KindTimeout Kind = "TIMEOUT"

	// KindDimensionMismatch marks a vector whose length does not equal
	// the model's declared dimension.
	KindDimensionMismatch Kind = "DIMENSION_MISMATCH"

	// KindCorruptEmbedding marks a stored vector that failed to parse.
	KindCorruptEmbedding Kind = "CORRUPT_EMBEDDING"

	// KindNotFound marks a memory or link not found where expected.
	KindNotFound Kind = "NOT_FOUND"

	// KindStorage marks an unexpected database failure.
	KindStorage Kind = "STORAGE"

	// KindCursorDecode marks an opaque pagination cursor that failed to
	// round-trip.
	KindCursorDecode Kind = "CURSOR_DECODE"
)

// Error is the concrete error type returned by memcore components. It
// implements error, Is (for errors.Is against a Kind sentinel via Is), and
// Unwrap so callers can reach the underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	StatusCode int // set only for KindNetwork errors carrying an HTTP status
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, memerr.Kind(...)) style comparisons work when the
// target is itself an *Error with the same Kind and no message requirement.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Validation constructs a KindValidation error.
func Validation(msg string) *Error { return newErr(KindValidation, msg, nil) }

// Validationf constructs a KindValidation error with formatting.
func Validationf(format string, args ...any) *Error {
	return newErr(KindValidation, fmt.Sprintf(format, args...), nil)
}

// Network constructs a KindNetwork error, optionally carrying an HTTP
// status code (0 when not applicable).
func Network(msg string, statusCode int, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Cause: cause, StatusCode: statusCode}
}

// Timeout constructs a KindTimeout error naming the elapsed deadline.
func Timeout(msg string) *Error { return newErr(KindTimeout, msg, nil) }

// DimensionMismatch constructs a KindDimensionMismatch error.
func DimensionMismatch(got, want int) *Error {
	return newErr(KindDimensionMismatch, fmt.Sprintf("vector dimension %d does not match expected %d", got, want), nil)
}

// CorruptEmbedding constructs a KindCorruptEmbedding error.
func CorruptEmbedding(msg string, cause error) *Error {
	return newErr(KindCorruptEmbedding, msg, cause)
}

// NotFound constructs a KindNotFound error.
func NotFound(msg string) *Error { return newErr(KindNotFound, msg, nil) }

// Storage constructs a KindStorage error wrapping a database driver error.
func Storage(msg string, cause error) *Error { return newErr(KindStorage, msg, cause) }

// CursorDecode constructs a KindCursorDecode error.
func CursorDecode(msg string, cause error) *Error { return newErr(KindCursorDecode, msg, cause) }

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether an *Error's kind is transient. Only network and
// timeout failures are transient by nature; every other kind is either a
// programming error or permanent storage corruption that a retry cannot
// fix. It returns false for any error that is not an *Error; the embedding
// queue consults it only for *Error values and retries other errors on its
// ordinary schedule.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}
