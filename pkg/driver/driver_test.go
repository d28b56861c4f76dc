package driver_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flowboard/flowboard/pkg/driver"
	"github.com/flowboard/flowboard/pkg/eventbus"
	"github.com/flowboard/flowboard/pkg/events"
	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/protocol"
	"github.com/flowboard/flowboard/pkg/registry"
	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/store/file"
	"github.com/flowboard/flowboard/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingBus records published events in order.
type capturingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *capturingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *capturingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]events.EventType, 0, len(b.events))
	for _, event := range b.events {
		result = append(result, event.GetType())
	}

	return result
}

// views extracts the full run reconstructions carried by the captured
// events, in publish order.
func (b *capturingBus) views() []*models.Run {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]*models.Run, 0, len(b.events))

	for _, event := range b.events {
		switch e := event.(type) {
		case events.StepUpdate:
			result = append(result, e.Run)
		case events.StatusUpdate:
			result = append(result, e.Run)
		case events.RunWaiting:
			result = append(result, e.Run)
		case events.RunCompleted:
			result = append(result, e.Run)
		case events.RunFailed:
			result = append(result, e.Run)
		}
	}

	return result
}

// stubSession drives workflow functions inline, without a real
// durable-execution platform behind it.
type stubSession struct {
	approvalPayload map[string]any
	waitErr         error
	sleepErr        error

	// failuresByStep makes the named step's work fail this many times
	// before succeeding; the session replays attempts the way a retrying
	// runner would, up to the policy limit.
	failuresByStep map[string]int
}

func (s *stubSession) RunStep(ctx context.Context, name string, opts runner.StepOptions, work runner.Work) (any, error) {
	limit := 1
	if opts.Retries != nil {
		limit = opts.Retries.Limit
	}

	remaining := s.failuresByStep[name]

	for attempt := 1; attempt <= limit; attempt++ {
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt)
		}

		if remaining > 0 {
			remaining--

			continue
		}

		return work(ctx)
	}

	return nil, runner.ErrRetriesExhausted
}

func (s *stubSession) WaitForEvent(_ context.Context, _ string, _ runner.WaitOptions) (map[string]any, error) {
	if s.waitErr != nil {
		return nil, s.waitErr
	}

	return s.approvalPayload, nil
}

func (s *stubSession) Sleep(_ context.Context, _ string, _ time.Duration) error {
	return s.sleepErr
}

// stubFactory registers an in-test unit of work.
type stubFactory struct {
	id      string
	execute func(ctx context.Context, input map[string]any) (map[string]any, error)
}

func (f *stubFactory) ID() string             { return f.id }
func (f *stubFactory) Schema() map[string]any { return nil }

func (f *stubFactory) Create(_ map[string]any, _ *slog.Logger) (protocol.StepWork, error) {
	return stubWork{execute: f.execute}, nil
}

type stubWork struct {
	execute func(ctx context.Context, input map[string]any) (map[string]any, error)
}

func (w stubWork) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	return w.execute(ctx, input)
}

func newTestDriver(t *testing.T, factories ...*stubFactory) (*driver.Driver, *file.Store, *capturingBus) {
	t.Helper()

	st := file.NewStore(t.TempDir())
	bus := &capturingBus{}
	reg := registry.NewRegistry(slog.Default())

	for _, factory := range factories {
		reg.RegisterStepWork(factory)
	}

	return driver.NewDriver(st, bus, reg, nil, slog.Default()), st, bus
}

func TestDriver_RunCompletes(t *testing.T) {
	t.Parallel()

	var sawInput map[string]any

	first := &stubFactory{id: "first", execute: func(_ context.Context, input map[string]any) (map[string]any, error) {
		sawInput = input

		return map[string]any{"value": "from-first"}, nil
	}}
	second := &stubFactory{id: "second", execute: func(_ context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"carried": input["value"]}, nil
	}}

	d, st, bus := newTestDriver(t, first, second)

	template := testutil.CreateTestTemplate(testutil.WithSteps(
		testutil.WorkStep("one", "first"),
		testutil.ApprovalStep("gate", time.Minute),
		testutil.SleepStep("pause", time.Millisecond),
		testutil.WorkStep("two", "second"),
	))

	ctx := t.Context()
	require.NoError(t, st.CreateRun(ctx, "run-1", template.StepNames(), map[string]any{"seed": "s"}))

	session := &stubSession{approvalPayload: map[string]any{"approved_by": "alice"}}
	require.NoError(t, d.Run(ctx, "run-1", template, map[string]any{"seed": "s"}, session))

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.NotNil(t, run.EndTime)

	for _, step := range run.Steps {
		assert.Equal(t, models.StepStatusCompleted, step.Status, step.Name)
		require.NotNil(t, step.Duration, step.Name)
	}

	// The run input reached the first step, with the run id injected.
	assert.Equal(t, "s", sawInput["seed"])
	assert.Equal(t, "run-1", sawInput["run_id"])

	// Work output flows to the next work step across approval and sleep.
	output, ok := run.Steps[3].Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "from-first", output["carried"])

	// Approval payload is recorded as the gate step's output.
	gateOutput, ok := run.Steps[1].Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", gateOutput["approved_by"])

	types := bus.types()
	assert.Equal(t, events.StatusUpdateEvent, types[0])
	assert.Contains(t, types, events.RunWaitingEvent)
	assert.Equal(t, events.RunCompletedEvent, types[len(types)-1])
}

func TestDriver_ViewsKeepSingleActiveStep(t *testing.T) {
	t.Parallel()

	first := &stubFactory{id: "first", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"value": "a"}, nil
	}}
	second := &stubFactory{id: "second", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"value": "b"}, nil
	}}

	d, st, bus := newTestDriver(t, first, second)

	template := testutil.CreateTestTemplate(testutil.WithSteps(
		testutil.WorkStep("one", "first"),
		testutil.ApprovalStep("gate", time.Minute),
		testutil.SleepStep("pause", time.Millisecond),
		testutil.WorkStep("two", "second"),
	))

	ctx := t.Context()
	require.NoError(t, st.CreateRun(ctx, "run-1", template.StepNames(), nil))

	session := &stubSession{approvalPayload: map[string]any{"approved": true}}
	require.NoError(t, d.Run(ctx, "run-1", template, nil, session))

	// Every broadcast view must show at most one step in flight, with all
	// earlier steps terminal and all later steps still pending.
	views := bus.views()
	require.NotEmpty(t, views)

	for i, view := range views {
		inFlight := 0

		for _, step := range view.Steps {
			if step.Status == models.StepStatusRunning || step.Status == models.StepStatusWaiting {
				inFlight++
			}
		}

		assert.LessOrEqual(t, inFlight, 1, "view %d", i)

		active := view.ActiveStep()
		if active == nil {
			continue
		}

		for _, step := range view.Steps {
			if step.Index < active.Index {
				assert.True(t, step.Terminal(), "view %d: step %d before active %d", i, step.Index, active.Index)
			}

			if step.Index > active.Index {
				assert.Equal(t, models.StepStatusPending, step.Status,
					"view %d: step %d after active %d", i, step.Index, active.Index)
			}
		}
	}
}

func TestDriver_WorkFailureFailsRun(t *testing.T) {
	t.Parallel()

	boom := errors.New("document source unreachable")
	failing := &stubFactory{id: "failing", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, boom
	}}
	never := &stubFactory{id: "never", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		t.Fatal("step after a failure must not run")

		return nil, nil
	}}

	d, st, bus := newTestDriver(t, failing, never)

	template := testutil.CreateTestTemplate(testutil.WithSteps(
		testutil.WorkStep("one", "failing"),
		testutil.WorkStep("two", "never"),
	))

	ctx := t.Context()
	require.NoError(t, st.CreateRun(ctx, "run-1", template.StepNames(), nil))

	err := d.Run(ctx, "run-1", template, nil, &stubSession{})
	require.ErrorIs(t, err, boom)

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.EndTime)

	assert.Equal(t, models.StepStatusFailed, run.Steps[0].Status)
	require.NotNil(t, run.Steps[0].Error)
	assert.Contains(t, *run.Steps[0].Error, "document source unreachable")
	assert.Nil(t, run.Steps[0].Output)
	require.NotNil(t, run.Steps[0].Duration)

	assert.Equal(t, models.StepStatusPending, run.Steps[1].Status)

	types := bus.types()
	assert.Equal(t, events.RunFailedEvent, types[len(types)-1])
}

func TestDriver_ApprovalTimeoutFailsRun(t *testing.T) {
	t.Parallel()

	d, st, bus := newTestDriver(t)

	template := testutil.CreateTestTemplate(testutil.WithSteps(
		testutil.ApprovalStep("gate", time.Minute),
	))

	ctx := t.Context()
	require.NoError(t, st.CreateRun(ctx, "run-1", template.StepNames(), nil))

	session := &stubSession{waitErr: runner.ErrEventTimeout}
	err := d.Run(ctx, "run-1", template, nil, session)
	require.ErrorIs(t, err, runner.ErrEventTimeout)

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, models.StepStatusFailed, run.Steps[0].Status)

	// The run passes through waiting on the way in and reaches failed
	// through running, never directly from waiting.
	types := bus.types()
	assert.Contains(t, types, events.RunWaitingEvent)
	assert.Equal(t, events.RunFailedEvent, types[len(types)-1])
}

func TestDriver_RetryAttemptsAreSurfaced(t *testing.T) {
	t.Parallel()

	flaky := &stubFactory{id: "flaky", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}}

	d, st, bus := newTestDriver(t, flaky)

	template := testutil.CreateTestTemplate(testutil.WithSteps(
		testutil.WorkStep("one", "flaky",
			testutil.WithRetries(runner.RetryPolicy{Limit: 4, Delay: time.Millisecond, Backoff: 2})),
	))

	ctx := t.Context()
	require.NoError(t, st.CreateRun(ctx, "run-1", template.StepNames(), nil))

	session := &stubSession{failuresByStep: map[string]int{"one": 2}}
	require.NoError(t, d.Run(ctx, "run-1", template, nil, session))

	attempts := make([]int, 0, 3)

	bus.mu.Lock()
	for _, event := range bus.events {
		if retry, ok := event.(events.RetryAttempt); ok {
			attempts = append(attempts, retry.Attempt)
		}
	}
	bus.mu.Unlock()

	assert.Equal(t, []int{1, 2, 3}, attempts)

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
}

func TestDriver_RetriesExhaustedFailsRun(t *testing.T) {
	t.Parallel()

	flaky := &stubFactory{id: "flaky", execute: func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}}

	d, st, _ := newTestDriver(t, flaky)

	template := testutil.CreateTestTemplate(testutil.WithSteps(
		testutil.WorkStep("one", "flaky",
			testutil.WithRetries(runner.RetryPolicy{Limit: 2, Delay: time.Millisecond, Backoff: 2})),
	))

	ctx := t.Context()
	require.NoError(t, st.CreateRun(ctx, "run-1", template.StepNames(), nil))

	session := &stubSession{failuresByStep: map[string]int{"one": 5}}
	err := d.Run(ctx, "run-1", template, nil, session)
	require.ErrorIs(t, err, runner.ErrRetriesExhausted)

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}
