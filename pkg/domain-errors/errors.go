// Package domainerrors defines the typed error vocabulary shared by services
// and transport. Stores return infrastructure sentinels (pkg/platform/sentinel);
// services translate those into one of the codes below so handlers can map
// them to HTTP statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers that need to branch on outcome.
type Code string

const (
	// CodeBadRequest covers malformed or missing input, rejected before any
	// registry or ledger interaction.
	CodeBadRequest Code = "bad_request"
	// CodeValidation covers input that parses but violates a field rule.
	CodeValidation Code = "validation_error"
	// CodeConflict covers business-rule violations: duplicate registration,
	// double vote, non-owner transfer, transfer already in flight. Not
	// retryable.
	CodeConflict Code = "conflict"
	// CodeNotFound covers lookups of voters or blocks that do not exist.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized covers missing or invalid admin credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeServiceFailed covers failures of the external duplicate-detection
	// and biometric services, including caller-supplied timeout expiry. The
	// caller may retry the whole operation.
	CodeServiceFailed Code = "service_failed"
	// CodeIntegrity covers detected tampering and chain-linkage faults.
	// Never auto-corrected; requires manual investigation.
	CodeIntegrity Code = "integrity_fault"
	// CodeTimeout covers request deadline expiry inside this process.
	CodeTimeout Code = "timeout"
	// CodeInternal covers storage failures and programming errors. Details
	// are logged, never returned to the caller.
	CodeInternal Code = "internal_error"
)

// Error carries a code, an operator-facing message, and the wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal
// for errors that never passed through a service translation.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
