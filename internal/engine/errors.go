package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a draw is requested while another is in flight.
	ErrBusy = errors.New("a draw is already in progress")

	// ErrExhaustedPool is returned when no entity is available.
	ErrExhaustedPool = errors.New("no entities left to draw")

	// ErrCommitConflict is returned when the selected entity stopped being
	// available between selection and commit.
	ErrCommitConflict = errors.New("selected entity is no longer available")

	// ErrInvalidPolicy is returned for unknown policy names and bad weights.
	ErrInvalidPolicy = errors.New("invalid selection policy")
)

// FailureCode categorizes draw failures.
type FailureCode string

const (
	// FailureBusy indicates an overlapping draw request.
	FailureBusy FailureCode = "BUSY"

	// FailureExhausted indicates an empty available set.
	FailureExhausted FailureCode = "EXHAUSTED_POOL"

	// FailureCommitConflict indicates a stale or vanished selection.
	FailureCommitConflict FailureCode = "COMMIT_CONFLICT"

	// FailureCancelled indicates the presentation gap was aborted.
	FailureCancelled FailureCode = "CANCELLED"

	// FailurePanic indicates a panic during selection, the gap or commit.
	// Draw re-panics after notifying.
	FailurePanic FailureCode = "PANIC"
)

// DrawFailure is the error returned by Draw.
//
// It wraps one of the package sentinels, so callers can match with
// errors.Is(err, ErrBusy) and friends, and carries structured fields for
// diagnostics.
type DrawFailure struct {
	// Code identifies the failure category.
	Code FailureCode

	// EntityID is the selected entity, or 0 if no selection was made.
	EntityID int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DrawFailure) Error() string {
	if e.EntityID != 0 {
		return fmt.Sprintf("%s: %v (entity=%d)", e.Code, e.Err, e.EntityID)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DrawFailure) Unwrap() error {
	return e.Err
}

// FailureCodeOf extracts the failure code from a Draw error.
// Returns "" if err is not a DrawFailure.
func FailureCodeOf(err error) FailureCode {
	var df *DrawFailure
	if errors.As(err, &df) {
		return df.Code
	}
	return ""
}

func newBusyFailure() *DrawFailure {
	return &DrawFailure{Code: FailureBusy, Err: ErrBusy}
}

func newExhaustedFailure() *DrawFailure {
	return &DrawFailure{Code: FailureExhausted, Err: ErrExhaustedPool}
}

func newConflictFailure(entityID int, cause error) *DrawFailure {
	return &DrawFailure{
		Code:     FailureCommitConflict,
		EntityID: entityID,
		Err:      fmt.Errorf("%w: %w", ErrCommitConflict, cause),
	}
}

func newCancelledFailure(entityID int, cause error) *DrawFailure {
	return &DrawFailure{
		Code:     FailureCancelled,
		EntityID: entityID,
		Err:      fmt.Errorf("draw aborted before commit: %w", cause),
	}
}

func newPanicFailure(entityID int, v any) *DrawFailure {
	return &DrawFailure{
		Code:     FailurePanic,
		EntityID: entityID,
		Err:      fmt.Errorf("draw panicked: %v", v),
	}
}
