// Package archive provides the report-write unit of work. The write is the
// pipeline's retrying step; retry scheduling belongs to the external runner,
// so Execute itself is single-shot.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const reportFileMode = 0o600

type Work struct {
	directory string
	overwrite bool
	logger    *slog.Logger
}

// NewWork builds an archive unit from template config.
func NewWork(config map[string]any, logger *slog.Logger) (*Work, error) {
	directory, _ := config["directory"].(string)
	if directory == "" {
		directory = os.TempDir()
	}

	overwrite, _ := config["overwrite"].(bool)

	return &Work{
		directory: directory,
		overwrite: overwrite,
		logger:    logger.With("module", "archive_step"),
	}, nil
}

func (w *Work) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	runID, _ := input["run_id"].(string)
	if runID == "" {
		runID = fmt.Sprintf("report-%d", time.Now().UTC().UnixNano())
	}

	path := filepath.Join(w.directory, runID+".json")

	if !w.overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, errors.New("report file already exists: " + path)
		}
	}

	report := map[string]any{
		"run_id":      runID,
		"archived_at": time.Now().UTC().Format(time.RFC3339),
		"result":      input,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	err = os.MkdirAll(w.directory, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	err = os.WriteFile(path, data, reportFileMode)
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	w.logger.InfoContext(ctx, "Archived report", "path", path, "bytes", len(data))

	return map[string]any{
		"path":          path,
		"bytes_written": len(data),
	}, nil
}
