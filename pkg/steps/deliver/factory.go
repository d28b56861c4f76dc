package deliver

import (
	"log/slog"

	"github.com/flowboard/flowboard/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return "deliver"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":     map[string]any{"type": "string", "format": "uri"},
			"headers": map[string]any{"type": "object"},
			"timeout": map[string]any{"type": "number", "minimum": 1},
		},
		"required":             []any{"url"},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.StepWork, error) {
	return NewWork(config, logger)
}
