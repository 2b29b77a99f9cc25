// Package types defines core data types and the stable error surface for the
// PDF translation pipeline.
package types

import "errors"

// ErrorCode is the stable, transport-independent error code surface.
type ErrorCode string

const (
	ErrFormatUnsupported ErrorCode = "FORMAT_UNSUPPORTED"
	ErrEncrypted         ErrorCode = "ENCRYPTED"
	ErrCorrupted         ErrorCode = "CORRUPTED"
	ErrAuthFailed        ErrorCode = "AUTHENTICATION_FAILED"
	ErrAuthRequired      ErrorCode = "AUTHENTICATION_REQUIRED"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrServiceUnavail    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrTimeout           ErrorCode = "PROCESSING_TIMEOUT"
	ErrProtocol          ErrorCode = "PROTOCOL_ERROR"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrInternal          ErrorCode = "INTERNAL"
)

// AppError is the application error type carried across all stages.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// CodeOf extracts the ErrorCode from err, walking the wrap chain.
// Errors that carry no code map to ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsRetryable reports whether an operation failing with this code may be
// retried. Authentication, validation, and protocol errors are terminal.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrRateLimited, ErrServiceUnavail, ErrTimeout:
		return true
	default:
		return false
	}
}
