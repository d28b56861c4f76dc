// Package protocol defines the factory contracts that the registry and
// plugin loader work against.
package protocol

import (
	"context"
	"log/slog"
)

// StepWork is one configured unit of work executed inside a durable step.
// Input is the output of the preceding step (or the run params for the
// first); the returned map becomes the step output and the next input.
type StepWork interface {
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// StepWorkFactory builds StepWork instances from template configuration.
type StepWorkFactory interface {
	// ID returns the work kind the factory builds, referenced by templates.
	ID() string

	// Schema returns the JSON Schema the step config must satisfy.
	Schema() map[string]any

	// Create builds a configured unit of work.
	Create(config map[string]any, logger *slog.Logger) (StepWork, error)
}
