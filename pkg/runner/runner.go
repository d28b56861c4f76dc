// Package runner defines the contract of the external durable-execution
// platform. The platform owns retry scheduling, timeouts, crash recovery,
// long sleeps and event-wait persistence; this repository only drives it
// through these interfaces and mirrors the resulting state.
package runner

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInstanceNotFound indicates the runner holds no instance for the id.
	ErrInstanceNotFound = errors.New("runner instance not found")

	// ErrEventTimeout indicates a WaitForEvent deadline elapsed before the
	// expected event arrived.
	ErrEventTimeout = errors.New("timed out waiting for event")

	// ErrRetriesExhausted indicates a unit of work failed on every attempt
	// the retry policy allowed.
	ErrRetriesExhausted = errors.New("step retries exhausted")
)

// Event is an external signal delivered to a running instance, such as a
// human approval.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RetryPolicy configures the runner's in-step retry scheduling. Backoff is
// the multiplier applied to Delay between attempts.
type RetryPolicy struct {
	Limit   int           `json:"limit"`
	Delay   time.Duration `json:"delay"`
	Backoff float64       `json:"backoff"`
}

// StepOptions configures one durable step execution. OnAttempt, when set,
// fires before every attempt including the first, so callers can surface
// live retry progress.
type StepOptions struct {
	Retries   *RetryPolicy
	Timeout   time.Duration
	OnAttempt func(attempt int)
}

// WaitOptions configures an event wait.
type WaitOptions struct {
	Type    string
	Timeout time.Duration
}

// Work is one unit of work executed under the runner's durability guarantees.
type Work func(ctx context.Context) (any, error)

// Session is handed to the workflow function while it executes inside the
// runner. All calls suspend durably; a crashed process resumes from the last
// completed step.
type Session interface {
	// RunStep executes work under the given options and returns its result.
	// Exhausted retries surface as an error wrapping ErrRetriesExhausted.
	RunStep(ctx context.Context, name string, opts StepOptions, work Work) (any, error)

	// WaitForEvent blocks until an event of the configured type arrives or
	// the timeout elapses (ErrEventTimeout).
	WaitForEvent(ctx context.Context, name string, opts WaitOptions) (map[string]any, error)

	// Sleep suspends the instance for the given duration.
	Sleep(ctx context.Context, name string, d time.Duration) error
}

// Handle addresses one existing instance from outside its execution.
type Handle interface {
	// SendEvent delivers an external event to the instance, waking a
	// matching WaitForEvent.
	SendEvent(ctx context.Context, event Event) error
}

// WorkflowFunc is the orchestration body executed inside the runner.
type WorkflowFunc func(ctx context.Context, session Session) error

// Runner is the durable-execution platform.
type Runner interface {
	// CreateInstance mints a new instance id. The id is the authoritative
	// run identifier across this whole system.
	CreateInstance(ctx context.Context) (string, error)

	// Instance returns a handle to an existing instance, or
	// ErrInstanceNotFound.
	Instance(id string) (Handle, error)

	// Execute runs the workflow function for the given instance under the
	// platform's durability guarantees and blocks until it finishes.
	Execute(ctx context.Context, id string, fn WorkflowFunc) error
}
