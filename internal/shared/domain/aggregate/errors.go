package aggregate

import (
	"fmt"
	"strings"
)

// Error codes for failed commands. The values double as HTTP status codes
// so handlers can map them directly.
const (
	CodeValidation = 400
	CodeNotFound   = 404
	CodeConflict   = 409
	CodeUnderflow  = 422
	CodeTransient  = 503
)

// Error is the structured failure every command can return: a numeric code
// plus an ordered list of human-readable reasons, suitable for direct display
// or logging.
type Error struct {
	Code    int      `json:"code"`
	Reasons []string `json:"reasons"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("command failed (code %d): %s", e.Code, strings.Join(e.Reasons, "; "))
}

// Retryable reports whether retrying the same command can succeed.
// Conflicts are retryable after re-reading the current version; transient
// infrastructure failures are retryable as-is.
func (e *Error) Retryable() bool {
	return e.Code == CodeConflict || e.Code == CodeTransient
}

// NewValidation reports a malformed or business-rule-violating command.
func NewValidation(reasons ...string) *Error {
	return &Error{Code: CodeValidation, Reasons: reasons}
}

// NewNotFound reports a command addressed to an aggregate that was never initialized.
func NewNotFound(reasons ...string) *Error {
	return &Error{Code: CodeNotFound, Reasons: reasons}
}

// NewConflict reports an expected-version mismatch.
func NewConflict(expected, actual int64) *Error {
	return &Error{
		Code:    CodeConflict,
		Reasons: []string{fmt.Sprintf("expected version %d but aggregate is at version %d", expected, actual)},
	}
}

// NewUnderflow reports a stats decrement that would drive a counter negative.
func NewUnderflow(reasons ...string) *Error {
	return &Error{Code: CodeUnderflow, Reasons: reasons}
}

// NewTransient reports an infrastructure failure worth retrying.
func NewTransient(reasons ...string) *Error {
	return &Error{Code: CodeTransient, Reasons: reasons}
}

// Wrap converts any error into an *Error. Typed errors pass through
// unchanged; everything else becomes a validation failure, so that engines
// never leak an untyped fault across their boundary.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*Error); ok {
		return typed
	}
	return NewValidation(err.Error())
}
