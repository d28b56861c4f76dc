// Package file provides a JSON-file-backed store for development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/store"
)

const runFileMode = 0o600

// Store persists each run as one JSON document under <root>/runs/. It is
// safe for concurrent use within a single process; cross-process sharing is
// not supported (use the postgres store for that).
type Store struct {
	root string
	mu   sync.RWMutex
}

type runDocument struct {
	Run    *models.Run    `json:"run"`
	Params map[string]any `json:"params,omitempty"`
}

// NewStore creates a file store rooted at the given directory.
func NewStore(root string) *Store {
	root = strings.TrimPrefix(root, "file://")

	return &Store{root: root}
}

func (s *Store) runsDir() string {
	return filepath.Join(s.root, "runs")
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.runsDir(), id+".json")
}

func (s *Store) CreateRun(ctx context.Context, id string, stepNames []string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.runsDir(), 0o750); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	if _, err := os.Stat(s.runPath(id)); err == nil {
		return store.NewRunError("CreateRun", id, store.ErrDuplicateRun)
	}

	run := &models.Run{
		ID:        id,
		Status:    models.RunStatusQueued,
		StartTime: time.Now().UTC(),
		Steps:     make([]*models.Step, 0, len(stepNames)),
	}
	for i, name := range stepNames {
		run.Steps = append(run.Steps, &models.Step{
			RunID:  id,
			Index:  i,
			Name:   name,
			Status: models.StepStatusPending,
		})
	}

	return s.writeRun(&runDocument{Run: run, Params: params})
}

func (s *Store) UpdateStep(ctx context.Context, runID string, index int, update store.StepUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readRun(runID)
	if err != nil {
		return store.NewStepError("UpdateStep", runID, index, err)
	}

	if doc.Run.Terminal() {
		return store.NewStepError("UpdateStep", runID, index, store.ErrRunTerminal)
	}

	if index < 0 || index >= len(doc.Run.Steps) {
		return store.NewStepError("UpdateStep", runID, index, store.ErrStepNotFound)
	}

	step := doc.Run.Steps[index]
	if update.Status != nil {
		step.Status = *update.Status
	}

	if update.Output != nil {
		step.Output = update.Output
		step.Error = nil
	}

	if update.Error != nil {
		step.Error = update.Error
		step.Output = nil
	}

	if update.Timestamp != nil {
		step.Timestamp = update.Timestamp
	}

	if update.Duration != nil {
		step.Duration = update.Duration
	}

	return s.writeRun(doc)
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, endTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readRun(runID)
	if err != nil {
		return store.NewRunError("UpdateRunStatus", runID, err)
	}

	if doc.Run.Terminal() {
		return store.NewRunError("UpdateRunStatus", runID, store.ErrRunTerminal)
	}

	if !models.ValidRunTransition(doc.Run.Status, status) {
		return store.NewRunError("UpdateRunStatus", runID,
			fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, doc.Run.Status, status))
	}

	if status.Terminal() && endTime == nil {
		return store.NewRunError("UpdateRunStatus", runID, store.ErrEndTimeRequired)
	}

	doc.Run.Status = status
	// End time accompanies the terminal status and nothing else.
	if status.Terminal() {
		doc.Run.EndTime = endTime
	}

	return s.writeRun(doc)
}

func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.readRun(id)
	if err != nil {
		return nil, err
	}

	return doc.Run, nil
}

func (s *Store) GetRunParams(ctx context.Context, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.readRun(id)
	if err != nil {
		return nil, err
	}

	return doc.Params, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := os.DirFS(s.runsDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		doc, err := s.readRun(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", id, err)
		}

		runs = append(runs, doc.Run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})

	return runs, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root unavailable: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("store root %s is not a directory", s.root)
	}

	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) readRun(id string) (*runDocument, error) {
	data, err := os.ReadFile(s.runPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var doc runDocument

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode run file: %w", err)
	}

	return &doc, nil
}

func (s *Store) writeRun(doc *runDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	err = os.WriteFile(s.runPath(doc.Run.ID), data, runFileMode)
	if err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	return nil
}
