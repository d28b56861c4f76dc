package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowboard/flowboard/pkg/driver"
	"github.com/flowboard/flowboard/pkg/eventbus"
	"github.com/flowboard/flowboard/pkg/events"
	"github.com/flowboard/flowboard/pkg/registry"
	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// WorkerManager consumes run-queued events and hosts one driver execution
// per run on the durable-execution platform.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	store    store.Store
	registry *registry.Registry
	eventBus eventbus.EventBus
	runner   runner.Runner
	template *workflow.Template
	tracer   trace.Tracer
}

func NewWorkerManager(
	id string,
	s store.Store,
	eventBus eventbus.EventBus,
	r runner.Runner,
	template *workflow.Template,
	logger *slog.Logger,
	reg *registry.Registry,
	tracer trace.Tracer,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "flowboard-worker", "worker_id", id),
		store:    s,
		registry: reg,
		eventBus: eventBus,
		runner:   r,
		template: template,
		tracer:   tracer,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.RunQueuedEvent, w.handleRunQueued)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleRunQueued(ctx context.Context, event any) error {
	queuedEvent, ok := event.(*events.RunQueued)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunQueued")

		return nil
	}

	logger := w.logger.With("run_id", queuedEvent.RunID, "event_id", queuedEvent.ID)
	logger.InfoContext(ctx, "Processing run queued event")

	d := driver.NewDriver(w.store, w.eventBus, w.registry, w.tracer, w.logger)

	// One long-lived driver task per run; concurrent runs share nothing but
	// the store.
	go func() {
		err := w.runner.Execute(ctx, queuedEvent.RunID, func(ctx context.Context, session runner.Session) error {
			return d.Run(ctx, queuedEvent.RunID, w.template, queuedEvent.Params, session)
		})
		if err != nil {
			logger.ErrorContext(ctx, "Run finished with failure", "error", err)
		}
	}()

	return nil
}
