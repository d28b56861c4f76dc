// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowboard/flowboard/pkg/registry"
	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/steps/analyze"
	"github.com/flowboard/flowboard/pkg/steps/archive"
	"github.com/flowboard/flowboard/pkg/steps/deliver"
	"github.com/flowboard/flowboard/pkg/steps/fetch"
)

func registerStepWorkPlugins(reg *registry.Registry, pluginsPath string) {
	plugins, err := reg.LoadStepWorkPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range plugins {
		reg.RegisterStepWork(plugin)
	}
}

func registerRunnerPlugins(reg *registry.Registry, pluginsPath string) {
	plugins, err := reg.LoadRunnerPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range plugins {
		reg.RegisterRunner(plugin)
	}
}

func registerNativeStepWorks(reg *registry.Registry) {
	reg.RegisterStepWork(fetch.NewFactory())
	reg.RegisterStepWork(analyze.NewFactory())
	reg.RegisterStepWork(deliver.NewFactory())
	reg.RegisterStepWork(archive.NewFactory())
}

func NewRegistry(log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerStepWorkPlugins(reg, pluginsPath)
	registerRunnerPlugins(reg, pluginsPath)

	registerNativeStepWorks(reg)

	return reg
}

// NewRunner resolves the durable-execution platform adapter by factory id.
// Adapters ship as Go plugins; nothing in this repository implements the
// engine itself.
func NewRunner(
	ctx context.Context,
	reg *registry.Registry,
	log *slog.Logger,
	runnerID string,
	config map[string]any,
) runner.Runner {
	factory, err := reg.RunnerFactory(runnerID)
	if err != nil {
		panic(fmt.Errorf("failed to resolve runner %q (is its plugin on the plugins path?): %w", runnerID, err))
	}

	r, err := factory.Create(ctx, config, log)
	if err != nil {
		panic(fmt.Errorf("failed to create runner %q: %w", runnerID, err))
	}

	return r
}
