// Package postgres provides the PostgreSQL-backed run store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/store/sqlbase"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// Store persists runs and steps in PostgreSQL via lib/pq.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens the database, verifies connectivity and applies migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}

	err = sqlbase.NewMigrationManager(logger, db, migrations).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) CreateRun(ctx context.Context, id string, stepNames []string, params map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal run params: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, status, start_time, params)
		VALUES ($1, $2, $3, $4)
	`, id, models.RunStatusQueued, time.Now().UTC(), paramsJSON)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return store.NewRunError("CreateRun", id, store.ErrDuplicateRun)
		}

		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, name := range stepNames {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, step_index, name, status)
			VALUES ($1, $2, $3, $4)
		`, id, i, name, models.StepStatusPending)
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", i, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit run creation: %w", err)
	}

	return nil
}

func (s *Store) UpdateStep(ctx context.Context, runID string, index int, update store.StepUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = s.lockRun(ctx, tx, "UpdateStep", runID)
	if err != nil {
		return err
	}

	assignments := make([]string, 0, 5)
	args := make([]any, 0, 7)

	addAssignment := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, column+" = $"+strconv.Itoa(len(args)))
	}

	if update.Status != nil {
		addAssignment("status", *update.Status)
	}

	if update.Output != nil {
		outputJSON, marshalErr := json.Marshal(update.Output)
		if marshalErr != nil {
			err = fmt.Errorf("failed to marshal step output: %w", marshalErr)

			return err
		}

		addAssignment("output", string(outputJSON))
		assignments = append(assignments, "error = NULL")
	}

	if update.Error != nil {
		addAssignment("error", *update.Error)
		assignments = append(assignments, "output = NULL")
	}

	if update.Timestamp != nil {
		addAssignment("step_timestamp", *update.Timestamp)
	}

	if update.Duration != nil {
		addAssignment("duration_ms", update.Duration.Milliseconds())
	}

	if len(assignments) == 0 {
		err = tx.Commit()

		return err
	}

	args = append(args, runID, index)
	query := "UPDATE workflow_steps SET " + strings.Join(assignments, ", ") +
		" WHERE workflow_id = $" + strconv.Itoa(len(args)-1) +
		" AND step_index = $" + strconv.Itoa(len(args))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		err = store.NewStepError("UpdateStep", runID, index, store.ErrStepNotFound)

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit step update: %w", err)
	}

	return nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, endTime *time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.RunStatus

	err = tx.QueryRowContext(ctx, "SELECT status FROM workflow_runs WHERE id = $1 FOR UPDATE", runID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = store.NewRunError("UpdateRunStatus", runID, store.ErrRunNotFound)

			return err
		}

		return fmt.Errorf("failed to query run status: %w", err)
	}

	if current.Terminal() {
		err = store.NewRunError("UpdateRunStatus", runID, store.ErrRunTerminal)

		return err
	}

	if !models.ValidRunTransition(current, status) {
		err = store.NewRunError("UpdateRunStatus", runID,
			fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status))

		return err
	}

	if status.Terminal() && endTime == nil {
		err = store.NewRunError("UpdateRunStatus", runID, store.ErrEndTimeRequired)

		return err
	}

	// End time accompanies the terminal status and nothing else.
	if status.Terminal() {
		_, err = tx.ExecContext(ctx,
			"UPDATE workflow_runs SET status = $1, end_time = $2 WHERE id = $3", status, *endTime, runID)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE workflow_runs SET status = $1 WHERE id = $2", status, runID)
	}

	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, start_time, end_time
		FROM workflow_runs
		WHERE id = $1
	`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	err = s.loadSteps(ctx, run)
	if err != nil {
		return nil, err
	}

	return run, nil
}

func (s *Store) GetRunParams(ctx context.Context, id string) (map[string]any, error) {
	var paramsJSON []byte

	err := s.db.QueryRowContext(ctx, "SELECT params FROM workflow_runs WHERE id = $1", id).Scan(&paramsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to query run params: %w", err)
	}

	if len(paramsJSON) == 0 {
		return nil, nil
	}

	var params map[string]any

	err = json.Unmarshal(paramsJSON, &params)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run params: %w", err)
	}

	return params, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, start_time, end_time
		FROM workflow_runs
		ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	for _, run := range runs {
		err = s.loadSteps(ctx, run)
		if err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	return nil
}

func (s *Store) Close(ctx context.Context) error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// lockRun takes a row lock on the run and rejects mutations of terminal runs.
func (s *Store) lockRun(ctx context.Context, tx *sql.Tx, op, runID string) error {
	var status models.RunStatus

	err := tx.QueryRowContext(ctx, "SELECT status FROM workflow_runs WHERE id = $1 FOR UPDATE", runID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewRunError(op, runID, store.ErrRunNotFound)
		}

		return fmt.Errorf("failed to query run status: %w", err)
	}

	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		return store.NewRunError(op, runID, store.ErrRunTerminal)
	}

	return nil
}

func (s *Store) loadSteps(ctx context.Context, run *models.Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, step_index, name, status, output, error, step_timestamp, duration_ms
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_index ASC
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	run.Steps = make([]*models.Step, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		run.Steps = append(run.Steps, step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	return nil
}

func scanRun(scanner interface{ Scan(...any) error }) (*models.Run, error) {
	var (
		run     models.Run
		endTime sql.NullTime
	)

	err := scanner.Scan(&run.ID, &run.Status, &run.StartTime, &endTime)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		t := endTime.Time
		run.EndTime = &t
	}

	return &run, nil
}

func scanStep(scanner interface{ Scan(...any) error }) (*models.Step, error) {
	var (
		step       models.Step
		output     sql.NullString
		errMsg     sql.NullString
		timestamp  sql.NullTime
		durationMS sql.NullInt64
	)

	err := scanner.Scan(&step.RunID, &step.Index, &step.Name, &step.Status, &output, &errMsg, &timestamp, &durationMS)
	if err != nil {
		return nil, err
	}

	if output.Valid && output.String != "" {
		var decoded any

		err = json.Unmarshal([]byte(output.String), &decoded)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
		}

		step.Output = decoded
	}

	if errMsg.Valid {
		msg := errMsg.String
		step.Error = &msg
	}

	if timestamp.Valid {
		t := timestamp.Time
		step.Timestamp = &t
	}

	if durationMS.Valid {
		d := time.Duration(durationMS.Int64) * time.Millisecond
		step.Duration = &d
	}

	return &step, nil
}
