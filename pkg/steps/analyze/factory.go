package analyze

import (
	"log/slog"

	"github.com/flowboard/flowboard/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return "analyze"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"endpoint": map[string]any{"type": "string", "format": "uri"},
			"model":    map[string]any{"type": "string"},
			"timeout":  map[string]any{"type": "number", "minimum": 1},
		},
		"required":             []any{"endpoint"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.StepWork, error) {
	return NewWork(config, logger)
}
