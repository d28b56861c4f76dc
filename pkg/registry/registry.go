// Package registry resolves step-work and runner factories, validating step
// configuration against each factory's schema.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"strings"

	"github.com/flowboard/flowboard/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger            *slog.Logger
	stepWorkFactories map[string]protocol.StepWorkFactory
	runnerFactories   map[string]protocol.RunnerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:            log,
		stepWorkFactories: make(map[string]protocol.StepWorkFactory),
		runnerFactories:   make(map[string]protocol.RunnerFactory),
	}
}

func (r *Registry) RegisterStepWork(factory protocol.StepWorkFactory) {
	r.stepWorkFactories[factory.ID()] = factory
}

func (r *Registry) RegisterRunner(factory protocol.RunnerFactory) {
	r.runnerFactories[factory.ID()] = factory
}

// CreateStepWork validates the config against the factory schema and builds
// the unit of work.
func (r *Registry) CreateStepWork(kind string, config map[string]any) (protocol.StepWork, error) {
	factory, ok := r.stepWorkFactories[kind]
	if !ok {
		return nil, fmt.Errorf("step work kind '%s' not registered", kind)
	}

	err := validateConfig(config, factory.Schema())
	if err != nil {
		return nil, fmt.Errorf("invalid config for step work '%s': %w", kind, err)
	}

	return factory.Create(config, r.logger)
}

// ValidateStepWork checks that a kind is registered and its config satisfies
// the factory schema, without building the work. Used to fail templates fast
// at startup.
func (r *Registry) ValidateStepWork(kind string, config map[string]any) error {
	factory, ok := r.stepWorkFactories[kind]
	if !ok {
		return fmt.Errorf("step work kind '%s' not registered", kind)
	}

	err := validateConfig(config, factory.Schema())
	if err != nil {
		return fmt.Errorf("invalid config for step work '%s': %w", kind, err)
	}

	return nil
}

// RunnerFactory returns the registered factory for a durable-execution
// platform adapter.
func (r *Registry) RunnerFactory(id string) (protocol.RunnerFactory, error) {
	factory, ok := r.runnerFactories[id]
	if !ok {
		return nil, fmt.Errorf("runner '%s' not registered", id)
	}

	return factory, nil
}

// HealthCheck reports whether the registry holds at least one work factory.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.stepWorkFactories) == 0 {
		return "no step work factories registered", false
	}

	return fmt.Sprintf("%d step work factories registered", len(r.stepWorkFactories)), true
}

// LoadRunnerPlugins loads runner adapter plugins from <path>/runners.
func (r *Registry) LoadRunnerPlugins(pluginsPath string) ([]protocol.RunnerFactory, error) {
	return loadPlugin[protocol.RunnerFactory](r.logger, pluginsPath, "Runner")
}

// LoadStepWorkPlugins loads step-work plugins from <path>/stepworks.
func (r *Registry) LoadStepWorkPlugins(pluginsPath string) ([]protocol.StepWorkFactory, error) {
	return loadPlugin[protocol.StepWorkFactory](r.logger, pluginsPath, "StepWork")
}

func validateConfig(config map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s in plugin %s: %w", symbolName, p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s does not implement %s", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
