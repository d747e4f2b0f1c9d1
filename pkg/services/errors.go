package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity
	ErrAlreadyExists = errors.New("entity already exists")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidStateError reports a pipeline precondition violation: a missing
// predecessor stage, a stage that already ran, or a stage with nothing to
// work on. The message is returned to clients verbatim.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// NewInvalidStateError creates a new invalid-state error
func NewInvalidStateError(message string) error {
	return &InvalidStateError{Message: message}
}

// IsInvalidStateError checks if an error is an invalid-state error
func IsInvalidStateError(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}
