package file_test

import (
	"testing"
	"time"

	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/store/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *file.Store {
	t.Helper()

	return file.NewStore(t.TempDir())
}

func statusPtr(s models.StepStatus) *models.StepStatus { return &s }

func TestStore_CreateRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	err := s.CreateRun(ctx, "run-1", []string{"A", "B", "C"}, map[string]any{"document_url": "https://example.com/doc"})
	require.NoError(t, err)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, run.Status)
	assert.Nil(t, run.EndTime)
	require.Len(t, run.Steps, 3)

	for i, step := range run.Steps {
		assert.Equal(t, i, step.Index)
		assert.Equal(t, models.StepStatusPending, step.Status)
	}

	assert.Equal(t, "A", run.Steps[0].Name)
	assert.Equal(t, "C", run.Steps[2].Name)

	params, err := s.GetRunParams(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/doc", params["document_url"])
}

func TestStore_CreateRun_Duplicate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	err := s.CreateRun(ctx, "run-1", []string{"A"}, nil)
	require.Error(t, err)
	assert.True(t, store.IsDuplicateRun(err))
}

func TestStore_GetRun_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.GetRun(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, store.IsRunNotFound(err))
}

func TestStore_UpdateStep_OutputRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"analyze-document"}, nil))

	output := map[string]any{
		"summary": "quarterly report",
		"score":   0.87,
		"topics":  []any{"finance", "forecast"},
		"nested":  map[string]any{"tokens": float64(812)},
	}

	err := s.UpdateStep(ctx, "run-1", 0, store.StepUpdate{
		Status: statusPtr(models.StepStatusCompleted),
		Output: output,
	})
	require.NoError(t, err)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, output, run.Steps[0].Output)
}

func TestStore_UpdateStep_ErrorClearsOutput(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	require.NoError(t, s.UpdateStep(ctx, "run-1", 0, store.StepUpdate{
		Status: statusPtr(models.StepStatusCompleted),
		Output: map[string]any{"ok": true},
	}))

	boom := "boom"
	require.NoError(t, s.UpdateStep(ctx, "run-1", 0, store.StepUpdate{
		Status: statusPtr(models.StepStatusFailed),
		Error:  &boom,
	}))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, run.Steps[0].Output)
	require.NotNil(t, run.Steps[0].Error)
	assert.Equal(t, "boom", *run.Steps[0].Error)
}

func TestStore_UpdateStep_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	err := s.UpdateStep(ctx, "run-1", 5, store.StepUpdate{Status: statusPtr(models.StepStatusRunning)})
	assert.True(t, store.IsStepNotFound(err))

	err = s.UpdateStep(ctx, "missing", 0, store.StepUpdate{Status: statusPtr(models.StepStatusRunning)})
	assert.True(t, store.IsRunNotFound(err))
}

func TestStore_UpdateRunStatus_InvalidTransition(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	err := s.UpdateRunStatus(ctx, "run-1", models.RunStatusCompleted, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestStore_UpdateRunStatus_EndTimeWithTerminalOnly(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	// An end time on a non-terminal transition is ignored.
	now := time.Now().UTC()
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusRunning, &now))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, run.EndTime)

	// A terminal transition without an end time is rejected and changes
	// nothing.
	err = s.UpdateRunStatus(ctx, "run-1", models.RunStatusFailed, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrEndTimeRequired)

	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	end := time.Now().UTC()
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusFailed, &end))

	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run.EndTime)
	assert.Equal(t, end.Unix(), run.EndTime.Unix())
}

func TestStore_TerminalImmutability(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusRunning, nil))

	end := time.Now().UTC()
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusCompleted, &end))

	err := s.UpdateRunStatus(ctx, "run-1", models.RunStatusFailed, nil)
	assert.True(t, store.IsRunTerminal(err))

	err = s.UpdateStep(ctx, "run-1", 0, store.StepUpdate{Status: statusPtr(models.StepStatusFailed)})
	assert.True(t, store.IsRunTerminal(err))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.NotNil(t, run.EndTime)
	assert.Equal(t, end.Unix(), run.EndTime.Unix())
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.CreateRun(ctx, "run-old", []string{"A"}, nil))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.CreateRun(ctx, "run-new", []string{"A"}, nil))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-old", runs[1].ID)
}

func TestStore_StepContiguity(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := t.Context()

	names := []string{"fetch-document", "analyze-document", "approval", "deliver-summary", "cool-down", "archive-report"}
	require.NoError(t, s.CreateRun(ctx, "run-1", names, nil))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, run.Steps, len(names))

	for i, step := range run.Steps {
		assert.Equal(t, i, step.Index)
		assert.Equal(t, names[i], step.Name)
	}
}
