// Package apperrors provides sentinel and custom error types for the engine.
package apperrors

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrInvalidState is the sentinel for invalid-state errors, e.g. running an
// incremental analysis for a conversation that has no cluster models yet.
// These are caller/configuration errors: re-running the same operation will
// not fix them.
var ErrInvalidState = &InvalidStateError{}

// InvalidStateError is a sentinel error for prerequisite-state violations.
type InvalidStateError struct {
	Message string
}

// NewInvalidStateError creates an InvalidStateError with a custom message.
func NewInvalidStateError(message string) *InvalidStateError {
	return &InvalidStateError{Message: message}
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "invalid state"
}

// Is implements the error interface for error comparison.
func (e *InvalidStateError) Is(target error) bool {
	_, ok := target.(*InvalidStateError)

	return ok
}

// ErrValidation represents a validation error.
// Use when input fails validation (e.g. a malformed CSV row).
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}
