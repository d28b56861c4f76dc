package postgres_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/store/postgres"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *tcpostgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_steps", "workflow_runs", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestStore(t *testing.T) (*postgres.Store, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("flowboard_test"),
			tcpostgres.WithUsername("flowboard"),
			tcpostgres.WithPassword("flowboard"),
			tcpostgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s, err := postgres.NewStore(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = s.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return s, ctx
}

func statusPtr(s models.StepStatus) *models.StepStatus { return &s }

func TestStore_CreateAndGetRun(t *testing.T) {
	s, ctx := setupTestStore(t)

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
		assert.Nil(t, step.Output)
		assert.Nil(t, step.Error)
	}

	params, err := s.GetRunParams(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/doc", params["document_url"])
}

func TestStore_CreateRun_Duplicate(t *testing.T) {
	s, ctx := setupTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	err := s.CreateRun(ctx, "run-1", []string{"A"}, nil)
	assert.True(t, store.IsDuplicateRun(err))
}

func TestStore_UpdateStep_OutputRoundTrip(t *testing.T) {
	s, ctx := setupTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"analyze-document"}, nil))

	output := map[string]any{
		"summary": "quarterly report",
		"score":   0.87,
		"topics":  []any{"finance", "forecast"},
	}

	now := time.Now().UTC()
	duration := 1500 * time.Millisecond

	err := s.UpdateStep(ctx, "run-1", 0, store.StepUpdate{
		Status:    statusPtr(models.StepStatusCompleted),
		Output:    output,
		Timestamp: &now,
		Duration:  &duration,
	})
	require.NoError(t, err)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)

	step := run.Steps[0]
	assert.Equal(t, models.StepStatusCompleted, step.Status)
	assert.Equal(t, output, step.Output)
	require.NotNil(t, step.Duration)
	assert.Equal(t, duration, *step.Duration)
	require.NotNil(t, step.Timestamp)
	assert.WithinDuration(t, now, *step.Timestamp, time.Second)
}

func TestStore_UpdateStep_ErrorClearsOutput(t *testing.T) {
	s, ctx := setupTestStore(t)

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
	s, ctx := setupTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	err := s.UpdateStep(ctx, "run-1", 9, store.StepUpdate{Status: statusPtr(models.StepStatusRunning)})
	assert.True(t, store.IsStepNotFound(err))

	err = s.UpdateStep(ctx, "missing", 0, store.StepUpdate{Status: statusPtr(models.StepStatusRunning)})
	assert.True(t, store.IsRunNotFound(err))
}

func TestStore_TerminalImmutability(t *testing.T) {
	s, ctx := setupTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusRunning, nil))

	end := time.Now().UTC()
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusFailed, &end))

	err := s.UpdateRunStatus(ctx, "run-1", models.RunStatusRunning, nil)
	assert.True(t, store.IsRunTerminal(err))

	err = s.UpdateStep(ctx, "run-1", 0, store.StepUpdate{Status: statusPtr(models.StepStatusRunning)})
	assert.True(t, store.IsRunTerminal(err))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.EndTime)
}

func TestStore_UpdateRunStatus_EndTimeWithTerminalOnly(t *testing.T) {
	s, ctx := setupTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	// An end time on a non-terminal transition is ignored.
	now := time.Now().UTC()
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusRunning, &now))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, run.EndTime)

	// A terminal transition without an end time is rejected and changes
	// nothing.
	err = s.UpdateRunStatus(ctx, "run-1", models.RunStatusCompleted, nil)
	assert.ErrorIs(t, err, store.ErrEndTimeRequired)

	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	end := time.Now().UTC()
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", models.RunStatusCompleted, &end))

	run, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run.EndTime)
}

func TestStore_UpdateRunStatus_InvalidTransition(t *testing.T) {
	s, ctx := setupTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", []string{"A"}, nil))

	err := s.UpdateRunStatus(ctx, "run-1", models.RunStatusWaiting, nil)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	s, ctx := setupTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-old", []string{"A"}, nil))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.CreateRun(ctx, "run-new", []string{"A", "B"}, nil))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Len(t, runs[0].Steps, 2)
	assert.Equal(t, "run-old", runs[1].ID)
	assert.Len(t, runs[1].Steps, 1)
}
