// Package errors defines common error types for the scheduler and allocator.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown               = "UNKNOWN_ERROR"
	CodeOutOfMemory           = "OUT_OF_MEMORY"
	CodeInvalidArgument       = "INVALID_ARGUMENT"
	CodePreconditionViolation = "PRECONDITION_VIOLATION"
	CodeNotFound              = "NOT_FOUND"
	CodeConfigError           = "CONFIG_ERROR"
	CodeDatabaseError         = "DATABASE_ERROR"
	CodeUploadError           = "UPLOAD_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrOutOfMemory           = New(CodeOutOfMemory, "out of memory")
	ErrInvalidArgument       = New(CodeInvalidArgument, "invalid argument")
	ErrPreconditionViolation = New(CodePreconditionViolation, "precondition violation")
	ErrNotFound              = New(CodeNotFound, "resource not found")
	ErrConfigError           = New(CodeConfigError, "configuration error")
	ErrDatabaseError         = New(CodeDatabaseError, "database error")
	ErrUploadError           = New(CodeUploadError, "upload error")
)

// IsOutOfMemory checks if the error is an out-of-memory error.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfMemory)
}

// IsInvalidArgument checks if the error is an invalid-argument error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsPreconditionViolation checks if the error is a precondition violation.
func IsPreconditionViolation(err error) bool {
	return errors.Is(err, ErrPreconditionViolation)
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
