package protocol

import (
	"context"
	"log/slog"

	"github.com/flowboard/flowboard/pkg/runner"
)

// RunnerFactory builds the adapter for a concrete durable-execution
// platform. Adapters ship as Go plugins so the engine integration stays out
// of this repository.
type RunnerFactory interface {
	ID() string
	Create(ctx context.Context, config map[string]any, logger *slog.Logger) (runner.Runner, error)
}
