// Package apperr carries the stable error codes returned to callers of the
// order engine.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation                  Code = "VALIDATION_ERROR"
	CodeInvalidTransition           Code = "INVALID_TRANSITION"
	CodeInsufficientStock           Code = "INSUFFICIENT_STOCK"
	CodeStaleState                  Code = "STALE_STATE"
	CodePermissionDenied            Code = "PERMISSION_DENIED"
	CodeNotFound                    Code = "NOT_FOUND"
	CodeNotificationDeliveryFailure Code = "NOTIFICATION_DELIVERY_FAILURE"
	CodeInternal                    Code = "INTERNAL"
)

// HTTPStatus maps a code to the status written by the HTTP surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeStaleState:
		return http.StatusConflict
	case CodeInsufficientStock:
		return http.StatusUnprocessableEntity
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the engine error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels usable with errors.Is.
var (
	ErrValidation        = New(CodeValidation, "validation failed")
	ErrInvalidTransition = New(CodeInvalidTransition, "invalid transition")
	ErrInsufficientStock = New(CodeInsufficientStock, "insufficient stock")
	ErrStaleState        = New(CodeStaleState, "stale state")
	ErrPermissionDenied  = New(CodePermissionDenied, "permission denied")
	ErrNotFound          = New(CodeNotFound, "not found")
)

// Validation builds a VALIDATION_ERROR with a formatted message.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

// CodeOf extracts the code from err, defaulting to INTERNAL.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
