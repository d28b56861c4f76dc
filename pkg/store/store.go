package store

import (
	"context"
	"time"

	"github.com/flowboard/flowboard/pkg/models"
)

// StepUpdate carries a partial merge into an existing step row. Nil fields
// are left untouched. Output is serialized to text on write and deserialized
// symmetrically on read.
type StepUpdate struct {
	Status    *models.StepStatus
	Output    any
	Error     *string
	Timestamp *time.Time
	Duration  *time.Duration
}

// Store is the durable source of truth for run and step state.
//
// Implementations must enforce terminal immutability: once a run reaches
// completed or failed, UpdateStep and UpdateRunStatus return ErrRunTerminal.
type Store interface {
	// CreateRun inserts a run in status queued together with one pending
	// step row per template entry, indexed 0..len(stepNames)-1. Params is
	// the opaque run input, kept so a retry can re-seed a sibling run.
	// Returns ErrDuplicateRun when the id is already taken.
	CreateRun(ctx context.Context, id string, stepNames []string, params map[string]any) error

	// UpdateStep merges the given fields into the step row at (runID, index).
	// Returns ErrRunNotFound, ErrStepNotFound or ErrRunTerminal.
	UpdateStep(ctx context.Context, runID string, index int, update StepUpdate) error

	// UpdateRunStatus moves the run to the given status. EndTime is required
	// with a terminal status and ignored otherwise. Returns ErrRunNotFound,
	// ErrRunTerminal, ErrInvalidTransition or ErrEndTimeRequired.
	UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, endTime *time.Time) error

	// GetRun reconstructs the full run view, steps ordered by index.
	// Returns ErrRunNotFound when absent.
	GetRun(ctx context.Context, id string) (*models.Run, error)

	// GetRunParams returns the opaque input the run was created with.
	GetRunParams(ctx context.Context, id string) (map[string]any, error)

	// ListRuns returns all runs with their full step lists, most recently
	// started first.
	ListRuns(ctx context.Context) ([]*models.Run, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
