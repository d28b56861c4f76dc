// Package main provides the Flowboard API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/flowboard/flowboard/pkg/eventbus"
	"github.com/flowboard/flowboard/pkg/liveview"
	"github.com/flowboard/flowboard/pkg/registry"
	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/services"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/flowboard/flowboard/pkg/web"
	"github.com/flowboard/flowboard/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type API struct {
	logger    *slog.Logger
	store     store.Store
	registry  *registry.Registry
	eventBus  eventbus.EventBus
	runner    runner.Runner
	template  *workflow.Template
	staticDir string
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	s store.Store,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	r runner.Runner,
	template *workflow.Template,
	staticDir string,
) *API {
	return &API{
		logger:    logger,
		store:     s,
		registry:  reg,
		eventBus:  eventBus,
		runner:    r,
		template:  template,
		staticDir: staticDir,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App wires the HTTP surface and the live view: bus events flow through the
// relay into the dispatcher, which fans out to stream subscribers.
func (a *API) App(ctx context.Context) (*fiber.App, error) {
	workflowService := services.NewWorkflow(a.store, a.eventBus, a.runner, a.template, a.logger)

	subscribers := liveview.NewRegistry()
	dispatcher := liveview.NewDispatcher(subscribers, a.logger)

	relay := liveview.NewRelay(dispatcher, a.logger)

	err := relay.Attach(a.eventBus)
	if err != nil {
		return nil, err
	}

	err = a.eventBus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	handlers := web.NewAPIHandlers(workflowService, subscribers, dispatcher, a.validate, a.registry)

	return web.NewApp(handlers, a.staticDir), nil
}

func (a *API) Start(ctx context.Context, port int) error {
	app, err := a.App(ctx)
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
