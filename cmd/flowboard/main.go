// Package main provides the all-in-one Flowboard server: API, live event
// stream, static dashboard and an in-process worker over a gochannel bus.
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/flowboard/flowboard/pkg/cmd"
	"github.com/flowboard/flowboard/pkg/driver"
	"github.com/flowboard/flowboard/pkg/events"
	"github.com/flowboard/flowboard/pkg/liveview"
	"github.com/flowboard/flowboard/pkg/log"
	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/services"
	"github.com/flowboard/flowboard/pkg/web"
	"github.com/flowboard/flowboard/pkg/workflow"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9090

func main() {
	command := &cli.Command{
		Name:                  "flowboard",
		Usage:                 "Run the workflow dashboard with an in-process worker",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Store URL (postgres://... or a file-store root path)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "runner",
				Usage:   "Durable-execution runner adapter id",
				Value:   "fluxo",
				Sources: cli.EnvVars("RUNNER"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing step-work and runner plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "static-dir",
				Usage:   "Directory the dashboard static files are served from",
				Value:   "./web/static",
				Sources: cli.EnvVars("STATIC_DIR"),
			},
			&cli.StringFlag{
				Name:     "inference-endpoint",
				Usage:    "External inference service endpoint for document analysis",
				Required: true,
				Sources:  cli.EnvVars("INFERENCE_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "inference-model",
				Usage:   "Model name passed to the inference service",
				Sources: cli.EnvVars("INFERENCE_MODEL"),
			},
			&cli.StringFlag{
				Name:     "delivery-url",
				Usage:    "External API the approved summary is delivered to",
				Required: true,
				Sources:  cli.EnvVars("DELIVERY_URL"),
			},
			&cli.StringFlag{
				Name:    "archive-dir",
				Usage:   "Directory the final report artifacts are written to",
				Value:   "./reports",
				Sources: cli.EnvVars("ARCHIVE_DIR"),
			},
			&cli.DurationFlag{
				Name:    "approval-timeout",
				Usage:   "How long a run waits at the approval gate before failing",
				Value:   15 * time.Minute,
				Sources: cli.EnvVars("APPROVAL_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "cool-down",
				Usage:   "Pause between delivery and archiving",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("COOL_DOWN"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("flowboard")
	logger.InfoContext(ctx, "Initializing Flowboard")

	registry := cmd.NewRegistry(logger, command.String("plugins-path"))

	template := workflow.ReportPipeline(workflow.ReportConfig{
		InferenceEndpoint: command.String("inference-endpoint"),
		InferenceModel:    command.String("inference-model"),
		DeliveryURL:       command.String("delivery-url"),
		ArchiveDir:        command.String("archive-dir"),
		ApprovalTimeout:   command.Duration("approval-timeout"),
		CoolDown:          command.Duration("cool-down"),
	})

	err := template.Validate(registry)
	if err != nil {
		return err
	}

	s := cmd.NewStore(ctx, logger, command.String("database-url"))
	defer func() {
		err := s.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close store", "error", err)
		}
	}()

	// Everything runs in one process, so the in-memory bus is enough.
	eventBus := cmd.NewEventBus("gochannel", "flowboard", logger)
	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	r := cmd.NewRunner(ctx, registry, logger, command.String("runner"), nil)

	// The in-process worker: queued runs start a driver task on the runner.
	d := driver.NewDriver(s, eventBus, registry, nil, logger)

	err = eventBus.Handle(events.RunQueuedEvent, func(ctx context.Context, event any) error {
		queuedEvent, ok := event.(*events.RunQueued)
		if !ok {
			return nil
		}

		go func() {
			err := r.Execute(ctx, queuedEvent.RunID, func(ctx context.Context, session runner.Session) error {
				return d.Run(ctx, queuedEvent.RunID, template, queuedEvent.Params, session)
			})
			if err != nil {
				logger.ErrorContext(ctx, "Run finished with failure", "run_id", queuedEvent.RunID, "error", err)
			}
		}()

		return nil
	})
	if err != nil {
		return err
	}

	workflowService := services.NewWorkflow(s, eventBus, r, template, logger)

	subscribers := liveview.NewRegistry()
	dispatcher := liveview.NewDispatcher(subscribers, logger)

	relay := liveview.NewRelay(dispatcher, logger)

	err = relay.Attach(eventBus)
	if err != nil {
		return err
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	handlers := web.NewAPIHandlers(
		workflowService,
		subscribers,
		dispatcher,
		validator.New(validator.WithRequiredStructEnabled()),
		registry,
	)

	app := web.NewApp(handlers, command.String("static-dir"))

	err = app.Listen(":" + strconv.Itoa(command.Int("port")))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start server", "error", err)
	}

	return nil
}
