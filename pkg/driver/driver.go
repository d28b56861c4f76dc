// Package driver sequences a run through its template on the external
// durable-execution runner, keeping the store and the event stream in sync
// with every transition.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowboard/flowboard/pkg/eventbus"
	"github.com/flowboard/flowboard/pkg/events"
	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/otelhelper"
	"github.com/flowboard/flowboard/pkg/registry"
	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ApprovalEventType is the external event type that releases an approval
// gate.
const ApprovalEventType = "approval"

// Driver advances one run at a time. A single driver instance is safe for
// concurrent runs: all per-run state lives in the store, never in the
// driver.
type Driver struct {
	store    store.Store
	bus      eventbus.EventPublisher
	registry *registry.Registry
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewDriver(
	s store.Store,
	bus eventbus.EventPublisher,
	reg *registry.Registry,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Driver {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("driver")
	}

	return &Driver{
		store:    s,
		bus:      bus,
		registry: reg,
		tracer:   tracer,
		logger:   logger.With("module", "driver"),
	}
}

// Run executes the template for one run inside the runner session, step by
// step. Each transition is persisted before it is published, so the stream
// never gets ahead of the store. The returned error is the step failure
// itself, propagated so the runner's own bookkeeping sees it.
func (d *Driver) Run(
	ctx context.Context,
	runID string,
	template *workflow.Template,
	params map[string]any,
	session runner.Session,
) error {
	logger := d.logger.With("run_id", runID, "template", template.Name)
	logger.InfoContext(ctx, "Starting run")

	err := d.store.UpdateRunStatus(ctx, runID, models.RunStatusRunning, nil)
	if err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	d.publishStatus(ctx, runID, models.RunStatusRunning, "")

	input := params

	for i, step := range template.Steps {
		output, err := d.runStep(ctx, runID, i, step, input, session)
		if err != nil {
			logger.ErrorContext(ctx, "Run failed", "step", step.Name, "error", err)

			return err
		}

		// Work steps feed the next step; approval and sleep steps are
		// pass-through.
		if step.Kind == workflow.StepKindWork {
			input = output
		}
	}

	now := time.Now().UTC()

	err = d.store.UpdateRunStatus(ctx, runID, models.RunStatusCompleted, &now)
	if err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}

	d.publishStatus(ctx, runID, models.RunStatusCompleted, "")
	logger.InfoContext(ctx, "Run completed")

	return nil
}

func (d *Driver) runStep(
	ctx context.Context,
	runID string,
	index int,
	step workflow.StepSpec,
	input map[string]any,
	session runner.Session,
) (map[string]any, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "driver.step",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.Int(otelhelper.StepIndexKey, index),
		attribute.String(otelhelper.StepNameKey, step.Name),
		attribute.String(otelhelper.StepKindKey, string(step.Kind)),
	)
	defer span.End()

	var (
		output map[string]any
		err    error
	)

	switch step.Kind {
	case workflow.StepKindApproval:
		output, err = d.runApprovalStep(ctx, runID, index, step, session)
	case workflow.StepKindSleep:
		err = d.runSleepStep(ctx, runID, index, step, session)
	default:
		output, err = d.runWorkStep(ctx, runID, index, step, input, session)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return output, nil
}

// runWorkStep executes a configured unit of work under the runner's step
// primitive. Retry scheduling belongs to the runner; the driver only
// surfaces each attempt to viewers.
func (d *Driver) runWorkStep(
	ctx context.Context,
	runID string,
	index int,
	step workflow.StepSpec,
	input map[string]any,
	session runner.Session,
) (map[string]any, error) {
	err := d.markStepActive(ctx, runID, index, models.StepStatusRunning)
	if err != nil {
		return nil, err
	}

	work, err := d.registry.CreateStepWork(step.Work, step.Config)
	if err != nil {
		failErr := fmt.Errorf("step %q: %w", step.Name, err)
		d.failFromRunning(ctx, runID, index, failErr)

		return nil, failErr
	}

	opts := runner.StepOptions{
		Retries: step.Retries,
		Timeout: step.Timeout,
		OnAttempt: func(attempt int) {
			d.publish(ctx, runID, events.RetryAttempt{
				BaseEvent: events.NewBaseEvent(events.RetryAttemptEvent, runID),
				StepIndex: index,
				Attempt:   attempt,
			})
		},
	}

	stepInput := make(map[string]any, len(input)+1)
	for k, v := range input {
		stepInput[k] = v
	}

	stepInput["run_id"] = runID

	result, err := session.RunStep(ctx, step.Name, opts, func(ctx context.Context) (any, error) {
		return work.Execute(ctx, stepInput)
	})
	if err != nil {
		failErr := fmt.Errorf("step %q failed: %w", step.Name, err)
		d.failFromRunning(ctx, runID, index, failErr)

		return nil, failErr
	}

	output, ok := result.(map[string]any)
	if !ok && result != nil {
		failErr := fmt.Errorf("step %q returned an unexpected result type %T", step.Name, result)
		d.failFromRunning(ctx, runID, index, failErr)

		return nil, failErr
	}

	err = d.completeStep(ctx, runID, index, output)
	if err != nil {
		return nil, err
	}

	return output, nil
}

// runApprovalStep parks the run on an external approval event. A timed-out
// wait fails the step and the run.
func (d *Driver) runApprovalStep(
	ctx context.Context,
	runID string,
	index int,
	step workflow.StepSpec,
	session runner.Session,
) (map[string]any, error) {
	err := d.markStepActive(ctx, runID, index, models.StepStatusWaiting)
	if err != nil {
		return nil, err
	}

	err = d.store.UpdateRunStatus(ctx, runID, models.RunStatusWaiting, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to mark run waiting: %w", err)
	}

	d.publishStatus(ctx, runID, models.RunStatusWaiting, "")

	payload, waitErr := session.WaitForEvent(ctx, step.Name, runner.WaitOptions{
		Type:    ApprovalEventType,
		Timeout: step.WaitTimeout,
	})

	// The run leaves waiting through running either way; failed is only
	// reachable from running.
	err = d.store.UpdateRunStatus(ctx, runID, models.RunStatusRunning, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resume run: %w", err)
	}

	d.publishStatus(ctx, runID, models.RunStatusRunning, "")

	if waitErr != nil {
		failErr := fmt.Errorf("step %q: %w", step.Name, waitErr)
		d.failFromRunning(ctx, runID, index, failErr)

		return nil, failErr
	}

	if payload == nil {
		payload = map[string]any{"approved": true}
	}

	err = d.completeStep(ctx, runID, index, payload)
	if err != nil {
		return nil, err
	}

	return payload, nil
}

// runSleepStep suspends the run for the configured cool-down.
func (d *Driver) runSleepStep(
	ctx context.Context,
	runID string,
	index int,
	step workflow.StepSpec,
	session runner.Session,
) error {
	err := d.markStepActive(ctx, runID, index, models.StepStatusRunning)
	if err != nil {
		return err
	}

	err = session.Sleep(ctx, step.Name, step.Sleep)
	if err != nil {
		failErr := fmt.Errorf("step %q: %w", step.Name, err)
		d.failFromRunning(ctx, runID, index, failErr)

		return failErr
	}

	return d.completeStep(ctx, runID, index, nil)
}

// markStepActive moves a step to running or waiting with a fresh timestamp
// and publishes the resulting view.
func (d *Driver) markStepActive(ctx context.Context, runID string, index int, status models.StepStatus) error {
	now := time.Now().UTC()

	err := d.store.UpdateStep(ctx, runID, index, store.StepUpdate{
		Status:    &status,
		Timestamp: &now,
	})
	if err != nil {
		return fmt.Errorf("failed to mark step %d %s: %w", index, status, err)
	}

	d.publishStepUpdate(ctx, runID, index)

	return nil
}

// completeStep records the output and the elapsed duration. The duration is
// derived from the timestamp persisted when the step went active, re-read
// from the store so it stays correct across process restarts.
func (d *Driver) completeStep(ctx context.Context, runID string, index int, output map[string]any) error {
	status := models.StepStatusCompleted

	update := store.StepUpdate{
		Status:   &status,
		Output:   output,
		Duration: d.elapsed(ctx, runID, index),
	}

	err := d.store.UpdateStep(ctx, runID, index, update)
	if err != nil {
		return fmt.Errorf("failed to mark step %d completed: %w", index, err)
	}

	d.publishStepUpdate(ctx, runID, index)

	return nil
}

// failFromRunning fails the step, then the run. Persistence errors here are
// logged, not returned: the step failure itself is what propagates.
func (d *Driver) failFromRunning(ctx context.Context, runID string, index int, failErr error) {
	status := models.StepStatusFailed
	message := failErr.Error()

	err := d.store.UpdateStep(ctx, runID, index, store.StepUpdate{
		Status:   &status,
		Error:    &message,
		Duration: d.elapsed(ctx, runID, index),
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to persist step failure", "run_id", runID, "step_index", index, "error", err)
	}

	d.publishStepUpdate(ctx, runID, index)

	now := time.Now().UTC()

	err = d.store.UpdateRunStatus(ctx, runID, models.RunStatusFailed, &now)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to persist run failure", "run_id", runID, "error", err)
	}

	d.publishStatus(ctx, runID, models.RunStatusFailed, message)
}

func (d *Driver) elapsed(ctx context.Context, runID string, index int) *time.Duration {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil || index >= len(run.Steps) {
		return nil
	}

	started := run.Steps[index].Timestamp
	if started == nil {
		return nil
	}

	elapsed := time.Now().UTC().Sub(*started)

	return &elapsed
}

// publishStepUpdate re-reads the canonical view and broadcasts it. Viewers
// always receive full reconstructions, never deltas.
func (d *Driver) publishStepUpdate(ctx context.Context, runID string, index int) {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to load run for step update", "run_id", runID, "error", err)

		return
	}

	d.publish(ctx, runID, events.StepUpdate{
		BaseEvent: events.NewBaseEvent(events.StepUpdateEvent, runID),
		StepIndex: index,
		Run:       run,
	})
}

func (d *Driver) publishStatus(ctx context.Context, runID string, status models.RunStatus, message string) {
	run, err := d.store.GetRun(ctx, runID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to load run for status update", "run_id", runID, "error", err)

		return
	}

	var event eventbus.Event

	switch status {
	case models.RunStatusWaiting:
		event = events.RunWaiting{
			BaseEvent: events.NewBaseEvent(events.RunWaitingEvent, runID),
			Run:       run,
		}
	case models.RunStatusCompleted:
		event = events.RunCompleted{
			BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, runID),
			Run:       run,
		}
	case models.RunStatusFailed:
		event = events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, runID),
			Run:       run,
			Error:     message,
		}
	default:
		event = events.StatusUpdate{
			BaseEvent: events.NewBaseEvent(events.StatusUpdateEvent, runID),
			Run:       run,
		}
	}

	d.publish(ctx, runID, event)
}

// publish is best effort: a bus hiccup must not fail the run, the store is
// the source of truth.
func (d *Driver) publish(ctx context.Context, runID string, event eventbus.Event) {
	err := d.bus.Publish(ctx, runID, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish event", "run_id", runID, "event_type", event.GetType(), "error", err)
	}
}
