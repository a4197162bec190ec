// Package errors provides standardized domain errors with codes for the FlashDeck core.
//
// Usage:
//
//	// In services - return typed errors
//	if sess == nil {
//	    return nil, errors.Unauthorized("no active session")
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrNotFound) {
//	    notify("That deck no longer exists")
//	    return
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeValidation:
//	        showFieldErrors(domainErr.Details)
//	    case errors.CodeStorageFailure:
//	        notify("Could not save, storage is full")
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeValidation       Code = "VALIDATION"
	CodeConflict         Code = "CONFLICT"
	CodeStorageFailure   Code = "STORAGE_FAILURE"
	CodeMigrationFailure Code = "MIGRATION_FAILURE"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInternal         Code = "INTERNAL"
)

// Recoverable reports whether errors with this code are runtime conditions
// the caller should turn into a notification rather than a bug report.
func (c Code) Recoverable() bool {
	switch c {
	case CodeStorageFailure, CodeMigrationFailure, CodeNotFound, CodeRateLimited:
		return true
	default:
		return false
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists    = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrUnauthorized     = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict         = &Error{Code: CodeConflict, Message: "conflict"}
	ErrStorageFailure   = &Error{Code: CodeStorageFailure, Message: "storage failure"}
	ErrMigrationFailure = &Error{Code: CodeMigrationFailure, Message: "media migration failure"}
	ErrRateLimited      = &Error{Code: CodeRateLimited, Message: "rate limited"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

// AlreadyExistsf creates an already exists error with formatted message.
func AlreadyExistsf(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// Unauthorizedf creates an unauthorized error with formatted message.
func Unauthorizedf(format string, args ...any) *Error {
	return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// StorageFailure creates a storage failure error.
func StorageFailure(msg string) *Error {
	return &Error{Code: CodeStorageFailure, Message: msg}
}

// StorageFailuref creates a storage failure error with formatted message.
func StorageFailuref(format string, args ...any) *Error {
	return &Error{Code: CodeStorageFailure, Message: fmt.Sprintf(format, args...)}
}

// RateLimited creates a rate limit error.
func RateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// MigrationFailure creates a media migration failure error.
func MigrationFailure(msg string) *Error {
	return &Error{Code: CodeMigrationFailure, Message: msg}
}

// MigrationFailuref creates a media migration failure error with a formatted message.
func MigrationFailuref(format string, args ...any) *Error {
	return &Error{Code: CodeMigrationFailure, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
