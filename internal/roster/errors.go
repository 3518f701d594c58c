package roster

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("roster validation failed")

	// ErrNotFound is returned by mutations that reference an unknown ID.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyDrawn is returned when an entity is marked drawn twice.
	ErrAlreadyDrawn = errors.New("entity already drawn")

	// ErrStaleGeneration is returned by CommitDraw when the pool was reset,
	// reloaded or lost a member after the caller took its snapshot.
	ErrStaleGeneration = errors.New("pool generation changed since selection")
)

// ValidationError reports a malformed roster or import payload.
// The roster is never modified when one is returned.
type ValidationError struct {
	// Field locates the offending value, e.g. "records[3].id". May be empty.
	Field string `json:"field,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid roster: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid roster: %s", e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
