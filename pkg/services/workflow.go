// Package services implements the application operations behind the HTTP
// surface and the intake sources.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowboard/flowboard/pkg/driver"
	"github.com/flowboard/flowboard/pkg/eventbus"
	"github.com/flowboard/flowboard/pkg/events"
	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/workflow"
)

var (
	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = store.ErrRunNotFound

	// ErrInstanceNotFound is returned when the runner holds no live
	// instance for the id.
	ErrInstanceNotFound = runner.ErrInstanceNotFound
)

// Workflow starts, continues and reads runs of one template.
type Workflow struct {
	store    store.Store
	bus      eventbus.EventPublisher
	runner   runner.Runner
	template *workflow.Template
	logger   *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(
	s store.Store,
	bus eventbus.EventPublisher,
	r runner.Runner,
	template *workflow.Template,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		store:    s,
		bus:      bus,
		runner:   r,
		template: template,
		logger:   logger.With("module", "services"),
	}
}

// StartRun mints a runner instance, seeds its rows in the store and signals
// workers. The instance id minted by the runner is the run id everywhere.
func (w *Workflow) StartRun(ctx context.Context, params map[string]any) (*models.Run, error) {
	id, err := w.runner.CreateInstance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner instance: %w", err)
	}

	err = w.store.CreateRun(ctx, id, w.template.StepNames(), params)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	err = w.bus.Publish(ctx, id, events.RunQueued{
		BaseEvent: events.NewBaseEvent(events.RunQueuedEvent, id),
		Params:    params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue run: %w", err)
	}

	w.logger.InfoContext(ctx, "Run queued", "run_id", id)

	return w.store.GetRun(ctx, id)
}

// GetRun returns the canonical view of one run, or store.ErrRunNotFound.
func (w *Workflow) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return w.store.GetRun(ctx, id)
}

// ListRuns returns all runs, most recently started first.
func (w *Workflow) ListRuns(ctx context.Context) ([]*models.Run, error) {
	return w.store.ListRuns(ctx)
}

// Continue delivers an approval to a run blocked on its approval gate.
func (w *Workflow) Continue(ctx context.Context, id string, payload map[string]any) error {
	handle, err := w.runner.Instance(id)
	if err != nil {
		return fmt.Errorf("failed to resolve instance %s: %w", id, err)
	}

	err = handle.SendEvent(ctx, runner.Event{
		Type:    driver.ApprovalEventType,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to send approval to %s: %w", id, err)
	}

	w.logger.InfoContext(ctx, "Approval delivered", "run_id", id)

	return nil
}

// Retry starts a fresh sibling run with the original run's input. The
// original run is never mutated; terminal state stays terminal.
func (w *Workflow) Retry(ctx context.Context, id string) (*models.Run, error) {
	_, err := w.store.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	params, err := w.store.GetRunParams(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s input: %w", id, err)
	}

	sibling, err := w.StartRun(ctx, params)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Run retried", "run_id", id, "sibling_id", sibling.ID)

	return sibling, nil
}

// HealthCheck checks the health of the store.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.store == nil {
		return "Store not initialized", false
	}

	err := w.store.HealthCheck(ctx)
	if err != nil {
		return "Store is unhealthy: " + err.Error(), false
	}

	return "Store is healthy", true
}
