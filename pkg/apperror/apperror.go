// Package apperror defines the domain error taxonomy shared by every layer of
// the authentication service. Domain errors carry an HTTP status and an
// optional field path; anything else reaching the HTTP boundary is treated as
// unhandled.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindBadRequest      Kind = "bad_request"
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindTooManyRequests Kind = "too_many_requests"
)

// FieldError describes a problem with a single input field
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error is a domain error rendered verbatim at the HTTP boundary
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Path    string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FieldErrors returns the field-scoped error list for the response envelope
func (e *Error) FieldErrors() []FieldError {
	if len(e.Fields) > 0 {
		return e.Fields
	}
	if e.Path != "" {
		return []FieldError{{Path: e.Path, Message: e.Message}}
	}
	return []FieldError{}
}

// Wrap attaches an underlying cause that is logged but never rendered
func (e *Error) Wrap(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

// Validation reports malformed input
func Validation(fields ...FieldError) *Error {
	message := "validation failed"
	if len(fields) == 1 {
		message = fields[0].Message
	}
	return &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Message: message,
		Fields:  fields,
	}
}

// Conflict reports a uniqueness violation on a field
func Conflict(path, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Status:  http.StatusBadRequest,
		Message: message,
		Path:    path,
	}
}

// BadRequest reports a request that is well-formed but cannot be applied
func BadRequest(message string) *Error {
	return &Error{
		Kind:    KindBadRequest,
		Status:  http.StatusBadRequest,
		Message: message,
	}
}

// Unauthorized reports a failed authentication
func Unauthorized(path, message string) *Error {
	return &Error{
		Kind:    KindUnauthorized,
		Status:  http.StatusUnauthorized,
		Message: message,
		Path:    path,
	}
}

// NotFound reports a missing user or credential
func NotFound(path, message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Status:  http.StatusNotFound,
		Message: message,
		Path:    path,
	}
}

// TooManyRequests reports a rate limit rejection
func TooManyRequests(message string) *Error {
	return &Error{
		Kind:    KindTooManyRequests,
		Status:  http.StatusTooManyRequests,
		Message: message,
	}
}

// As extracts a domain error from err
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// IsNotFound reports whether err is a NotFound domain error
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}
