// Package errors provides coded domain errors. Services return these so
// transport layers can map failures to HTTP statuses without inspecting
// error strings, and so callers can distinguish retry-safe conflicts from
// permanent validation failures.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable API: they appear in HTTP
// error bodies and logs.
type Code string

const (
	// CodeInvalidInput marks malformed input: unbalanced journal groups,
	// non-positive amounts, metadata that fails schema validation.
	// Nothing is persisted; retrying the same input fails the same way.
	CodeInvalidInput Code = "invalid_input"

	// CodeBadRequest marks transport-level input problems (unparseable
	// JSON, missing fields) before domain validation runs.
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks references to entities that do not exist.
	CodeNotFound Code = "not_found"

	// CodeConflict marks operations rejected by current state: invalid
	// posting-status transitions, version conflicts. Safe to retry with
	// corrected input.
	CodeConflict Code = "conflict"

	// CodeInsufficientFunds marks a debit that would drive a balance
	// negative. A specific conflict so callers can surface an actionable
	// message.
	CodeInsufficientFunds Code = "insufficient_funds"

	// CodeSignatureInvalid marks webhook signature verification failures.
	// Always fails closed and is never retried automatically; transport
	// surfaces it as an opaque rejection.
	CodeSignatureInvalid Code = "signature_invalid"

	// CodeUnauthorized marks missing or invalid caller credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeRateLimited marks requests rejected by admission control.
	CodeRateLimited Code = "rate_limited"

	// CodeUnavailable marks transient infrastructure failures the caller
	// may retry upstream.
	CodeUnavailable Code = "unavailable"

	// CodeInvariantViolation marks a broken internal invariant. These are
	// bugs, not caller mistakes.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeTimeout marks operations aborted by deadline or cancellation.
	CodeTimeout Code = "timeout"

	// CodeInternal marks unexpected internal failures. Transport never
	// leaks the underlying message.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message, preserving the cause for
// errors.Is / errors.As checks.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the domain error code from err, walking the wrap chain.
// Non-domain errors report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
