// Package errors provides the typed errors shared across keyhive services.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrValidation is returned when an input fails validation
	ErrValidation = "validation"

	// ErrUnauthenticated is returned when a caller is not authenticated
	ErrUnauthenticated = "unauthenticated"

	// ErrForbidden is returned when a caller is authenticated but not allowed
	ErrForbidden = "forbidden"

	// ErrNotFound is returned when a resource does not exist or is not visible to the caller
	ErrNotFound = "not_found"

	// ErrConflict is returned when a resource already exists
	ErrConflict = "conflict"

	// ErrRateLimited is returned when a caller exceeds a request budget
	ErrRateLimited = "rate_limited"

	// ErrCrypto is returned when encryption or decryption fails
	ErrCrypto = "crypto"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewUnauthenticatedError creates a new unauthenticated error
func NewUnauthenticatedError(message string, cause error) *Error {
	return NewError(ErrUnauthenticated, message, cause)
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string, cause error) *Error {
	return NewError(ErrForbidden, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, cause error) *Error {
	return NewError(ErrConflict, message, cause)
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string, cause error) *Error {
	return NewError(ErrRateLimited, message, cause)
}

// NewCryptoError creates a new crypto error. The message must never include
// key material or ciphertext.
func NewCryptoError(message string, cause error) *Error {
	return NewError(ErrCrypto, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return typeOf(err) == ErrValidation
}

// IsUnauthenticated checks if the error is an unauthenticated error
func IsUnauthenticated(err error) bool {
	return typeOf(err) == ErrUnauthenticated
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	return typeOf(err) == ErrForbidden
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return typeOf(err) == ErrNotFound
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return typeOf(err) == ErrConflict
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return typeOf(err) == ErrRateLimited
}

// IsCrypto checks if the error is a crypto error
func IsCrypto(err error) bool {
	return typeOf(err) == ErrCrypto
}

// TypeOf extracts the error type, unwrapping as needed. Unknown errors
// report an empty type.
func TypeOf(err error) string {
	return typeOf(err)
}

func typeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// HTTPStatus maps an error to the HTTP status code it should produce.
// Errors without a known type map to 500.
func HTTPStatus(err error) int {
	switch typeOf(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
