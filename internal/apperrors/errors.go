// Package apperrors defines the machine-readable error taxonomy shared by the
// engine and the HTTP layer.
package apperrors

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code returned to clients.
type Code string

const (
	// Precondition failures: the request was understood but the current state forbids it.
	CodeNoActiveBoss     Code = "NO_ACTIVE_BOSS"
	CodeInvalidSelection Code = "INVALID_SELECTION"
	CodeInvalidDelta     Code = "INVALID_DELTA"
	CodeInvalidDamage    Code = "INVALID_DAMAGE"
	CodeTaskNotFound     Code = "TASK_NOT_FOUND"
	CodeHabitNotFound    Code = "HABIT_NOT_FOUND"
	CodeAlreadyCompleted Code = "ALREADY_COMPLETED"
	CodeValidation       Code = "VALIDATION_FAILED"
	CodeUsernameTaken    Code = "USERNAME_TAKEN"

	// Identity failures.
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeRateLimited        Code = "RATE_LIMITED"

	// Transient: a concurrent writer won; the client may retry.
	CodeConflict Code = "CONFLICT"

	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps the code to the status the REST layer responds with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNoActiveBoss, CodeAlreadyCompleted, CodeUsernameTaken:
		return http.StatusConflict
	case CodeInvalidSelection, CodeInvalidDelta, CodeInvalidDamage, CodeValidation:
		return http.StatusBadRequest
	case CodeTaskNotFound, CodeHabitNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated, CodeTokenExpired, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type carried through the engine.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message, safe to show to the client
	Metadata map[string]string // Additional context (boss id, task id, ...)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error carrying extra context.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err (or anything it wraps) is a domain error with the given code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}
