package archive

import (
	"log/slog"

	"github.com/flowboard/flowboard/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return "archive"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"directory": map[string]any{"type": "string"},
			"overwrite": map[string]any{"type": "boolean"},
		},
		"additionalProperties": false,
	}
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.StepWork, error) {
	return NewWork(config, logger)
}
