package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeAuthentication indicates a bad, forged, or expired assertion,
	// or a missing dev-login selection.
	ErrCodeAuthentication ErrorCode = "authentication"
	// ErrCodeSessionStore indicates the session store is unreachable or a write failed.
	ErrCodeSessionStore ErrorCode = "session_store"
	// ErrCodeAuthorization indicates a request on a protected route without a valid session.
	ErrCodeAuthorization ErrorCode = "authorization"
	// ErrCodeCSRF indicates a state-changing request without a valid CSRF token.
	ErrCodeCSRF ErrorCode = "csrf"
	// ErrCodeUpstreamUnavailable indicates the upstream service call failed or timed out.
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	// ErrCodeConfiguration indicates invalid or missing configuration,
	// including attempts to issue tokens for an empty subject.
	ErrCodeConfiguration ErrorCode = "configuration"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Authentication creates a new Authentication error.
func Authentication(message string) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: message}
}

// Authenticationf creates a new Authentication error with formatted message.
func Authenticationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: fmt.Sprintf(format, args...)}
}

// AuthenticationWrap creates an Authentication error wrapping a cause.
func AuthenticationWrap(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: message, Cause: cause}
}

// SessionStore creates a SessionStore error wrapping a cause.
func SessionStore(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeSessionStore, Message: message, Cause: cause}
}

// Authorization creates a new Authorization error.
func Authorization(message string) *AppError {
	return &AppError{Code: ErrCodeAuthorization, Message: message}
}

// CSRF creates a new CSRF error.
func CSRF(message string) *AppError {
	return &AppError{Code: ErrCodeCSRF, Message: message}
}

// Upstream creates an UpstreamUnavailable error wrapping a cause.
func Upstream(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeUpstreamUnavailable, Message: message, Cause: cause}
}

// Upstreamf creates an UpstreamUnavailable error with formatted message.
func Upstreamf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeUpstreamUnavailable, Message: fmt.Sprintf(format, args...)}
}

// Configuration creates a new Configuration error.
func Configuration(message string) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: message}
}

// Configurationf creates a new Configuration error with formatted message.
func Configurationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Internal creates an Internal error wrapping a cause.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// CodeOf returns the ErrorCode of err if it is (or wraps) an AppError,
// and ErrCodeInternal otherwise.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
