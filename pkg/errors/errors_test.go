package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrValidation,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "validation: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrConflict,
				Message: "test message",
				Cause:   nil,
			},
			want: "conflict: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   nil,
	}

	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestNewError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewError(ErrValidation, "test message", cause)

	if err.Type != ErrValidation {
		t.Errorf("NewError().Type = %v, want %v", err.Type, ErrValidation)
	}
	if err.Message != "test message" {
		t.Errorf("NewError().Message = %v, want %v", err.Message, "test message")
	}
	if err.Cause != cause {
		t.Errorf("NewError().Cause = %v, want %v", err.Cause, cause)
	}
}

func TestNewErrorConstructors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantType    string
	}{
		{"NewValidationError", NewValidationError, ErrValidation},
		{"NewUnauthenticatedError", NewUnauthenticatedError, ErrUnauthenticated},
		{"NewForbiddenError", NewForbiddenError, ErrForbidden},
		{"NewNotFoundError", NewNotFoundError, ErrNotFound},
		{"NewConflictError", NewConflictError, ErrConflict},
		{"NewRateLimitedError", NewRateLimitedError, ErrRateLimited},
		{"NewCryptoError", NewCryptoError, ErrCrypto},
		{"NewInternalError", NewInternalError, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("test message", cause)
			if err.Type != tt.wantType {
				t.Errorf("%s().Type = %v, want %v", tt.name, err.Type, tt.wantType)
			}
			if err.Message != "test message" {
				t.Errorf("%s().Message = %v, want %v", tt.name, err.Message, "test message")
			}
			if err.Cause != cause {
				t.Errorf("%s().Cause = %v, want %v", tt.name, err.Cause, cause)
			}
		})
	}
}

func TestTypeCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"validation matches", NewValidationError("bad input", nil), IsValidation, true},
		{"validation mismatch", NewConflictError("dup", nil), IsValidation, false},
		{"unauthenticated matches", NewUnauthenticatedError("no token", nil), IsUnauthenticated, true},
		{"forbidden matches", NewForbiddenError("not yours", nil), IsForbidden, true},
		{"not found matches", NewNotFoundError("missing", nil), IsNotFound, true},
		{"conflict matches", NewConflictError("dup", nil), IsConflict, true},
		{"rate limited matches", NewRateLimitedError("slow down", nil), IsRateLimited, true},
		{"crypto matches", NewCryptoError("decrypt failed", nil), IsCrypto, true},
		{"plain error matches nothing", errors.New("plain"), IsNotFound, false},
		{"nil error matches nothing", nil, IsValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checker(tt.err); got != tt.want {
				t.Errorf("checker(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTypeCheckers_Wrapped(t *testing.T) {
	// Checkers must see through fmt.Errorf wrapping.
	inner := NewNotFoundError("entry not found", nil)
	wrapped := fmt.Errorf("loading entry: %w", inner)

	if !IsNotFound(wrapped) {
		t.Errorf("IsNotFound(wrapped) = false, want true")
	}
	if IsConflict(wrapped) {
		t.Errorf("IsConflict(wrapped) = true, want false")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("bad", nil), http.StatusBadRequest},
		{"unauthenticated", NewUnauthenticatedError("no", nil), http.StatusUnauthorized},
		{"forbidden", NewForbiddenError("no", nil), http.StatusForbidden},
		{"not found", NewNotFoundError("no", nil), http.StatusNotFound},
		{"conflict", NewConflictError("dup", nil), http.StatusConflict},
		{"rate limited", NewRateLimitedError("slow", nil), http.StatusTooManyRequests},
		{"crypto", NewCryptoError("fail", nil), http.StatusInternalServerError},
		{"internal", NewInternalError("fail", nil), http.StatusInternalServerError},
		{"untyped", errors.New("plain"), http.StatusInternalServerError},
		{"wrapped typed", fmt.Errorf("ctx: %w", NewConflictError("dup", nil)), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
