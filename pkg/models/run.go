// Package models defines the core domain models for workflow run tracking.
package models

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"    // Created, not yet picked up by a worker
	RunStatusRunning   RunStatus = "running"   // A step is actively executing
	RunStatusWaiting   RunStatus = "waiting"   // Blocked on an external approval event
	RunStatusCompleted RunStatus = "completed" // All steps completed
	RunStatusFailed    RunStatus = "failed"    // A step failed terminally
)

// StepStatus represents the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusWaiting   StepStatus = "waiting"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Run represents one execution of the workflow template. The run identifier
// is minted by the external durable-execution runner, never by this process.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Steps     []*Step    `json:"steps"`
}

// Step is one ordered unit of work within a run. Steps are identified by
// (run id, index); the index is assigned at creation and never reordered.
type Step struct {
	RunID     string         `json:"run_id"`
	Index     int            `json:"index"`
	Name      string         `json:"name"`
	Status    StepStatus     `json:"status"`
	Output    any            `json:"output,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Duration  *time.Duration `json:"duration,omitempty"`
}

// Terminal reports whether the status is a final one.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Terminal reports whether the run has reached a final state.
func (r *Run) Terminal() bool {
	return r.Status.Terminal()
}

// ActiveStep returns the step currently running or waiting, or nil when the
// run is queued or terminal.
func (r *Run) ActiveStep() *Step {
	for _, step := range r.Steps {
		if step.Status == StepStatusRunning || step.Status == StepStatusWaiting {
			return step
		}
	}

	return nil
}

// Terminal reports whether the step has reached a final state.
func (s *Step) Terminal() bool {
	return s.Status == StepStatusCompleted || s.Status == StepStatusFailed
}
