// Package store provides the persistence contract for workflow run state.
package store

import (
	"errors"
	"fmt"
)

// Standard store error types that all implementations must use.
var (
	// ErrRunNotFound indicates no run exists for the given identifier.
	// This is an expected outcome for stale or unknown ids, not a fault.
	ErrRunNotFound = errors.New("run not found")

	// ErrStepNotFound indicates no step exists at the given (run, index) pair.
	ErrStepNotFound = errors.New("step not found")

	// ErrDuplicateRun indicates a run with the same identifier already exists.
	ErrDuplicateRun = errors.New("run already exists")

	// ErrRunTerminal indicates a mutation was attempted against a run that
	// already reached completed or failed. Terminal runs are immutable;
	// retries create a sibling run instead.
	ErrRunTerminal = errors.New("run is terminal")

	// ErrInvalidTransition indicates a status change that the run state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEndTimeRequired indicates a move to a terminal status without the
	// end timestamp that must accompany it. End time is set exactly once,
	// together with the terminal status.
	ErrEndTimeRequired = errors.New("terminal status requires end time")
)

// RunError wraps run-related store errors with operation context.
type RunError struct {
	Op        string // Operation being performed (e.g., "CreateRun", "UpdateStep")
	RunID     string
	StepIndex int // -1 when the error is not step-scoped
	Err       error
}

func (e *RunError) Error() string {
	if e.StepIndex >= 0 {
		return fmt.Sprintf("%s failed for step %d of run %s: %v", e.Op, e.StepIndex, e.RunID, e.Err)
	}

	return fmt.Sprintf("%s failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a run-scoped store error.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, StepIndex: -1, Err: err}
}

// NewStepError creates a step-scoped store error.
func NewStepError(op, runID string, stepIndex int, err error) *RunError {
	return &RunError{Op: op, RunID: runID, StepIndex: stepIndex, Err: err}
}

// IsRunNotFound checks if an error indicates a missing run.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsStepNotFound checks if an error indicates a missing step.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsDuplicateRun checks if an error indicates a run id collision.
func IsDuplicateRun(err error) bool {
	return errors.Is(err, ErrDuplicateRun)
}

// IsRunTerminal checks if an error indicates a rejected terminal mutation.
func IsRunTerminal(err error) bool {
	return errors.Is(err, ErrRunTerminal)
}
