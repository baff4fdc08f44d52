// Package apperror defines the error vocabulary shared by every layer.
//
// HOW ERRORS FLOW:
// The repository and service layers return errors that wrap one of the
// sentinels below. Handlers never inspect messages; they ask
// errors.Is(err, apperror.ErrValidation) and friends, then decide between
// re-rendering a form, redirecting, or falling through to the error page.
//
// Anything that does not wrap a sentinel is treated as a fault and renders
// the generic failure page.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports that a write collided with an existing row, typically a
// UNIQUE constraint. Field names the column when it is known.
func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict on %s", resource, field),
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// ValidationErrors collects every field failure found while checking one
// request. Order is the order the checks ran, which is the order the form
// shows them.
//
// It unwraps to ErrValidation so callers can treat a single failure and a
// batch of failures the same way:
//
//	var verrs *apperror.ValidationErrors
//	if errors.As(err, &verrs) {
//	    for _, fe := range verrs.Errors { ... }
//	}
type ValidationErrors struct {
	Errors []*AppError
}

// Add appends a field failure.
func (v *ValidationErrors) Add(field, message string) {
	v.Errors = append(v.Errors, ValidationFailed(field, message))
}

// Empty reports whether no failure was recorded.
func (v *ValidationErrors) Empty() bool {
	return v == nil || len(v.Errors) == 0
}

// Has reports whether at least one failure was recorded for field.
func (v *ValidationErrors) Has(field string) bool {
	if v == nil {
		return false
	}
	for _, e := range v.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Err returns v as an error, or nil when it is empty. Returning a typed nil
// pointer through an error interface is a classic Go trap, so callers use
// this instead of returning v directly.
func (v *ValidationErrors) Err() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func (v *ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Messages returns the human-readable messages in order.
func (v *ValidationErrors) Messages() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e.Message)
	}
	return out
}
