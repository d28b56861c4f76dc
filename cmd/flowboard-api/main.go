package main

import (
	"context"
	"os"
	"time"

	"github.com/flowboard/flowboard/pkg/cmd"
	"github.com/flowboard/flowboard/pkg/log"
	"github.com/flowboard/flowboard/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowboard-api",
		Usage:                 "Serve the workflow dashboard API and live event stream",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Store URL (postgres://... or a file-store root path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
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
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("flowboard-api")
			logger.InfoContext(ctx, "Initializing Flowboard API")

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

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowboard-api", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			r := cmd.NewRunner(ctx, registry, logger, command.String("runner"), nil)

			api := NewAPI(
				logger,
				s,
				registry,
				eventBus,
				r,
				template,
				command.String("static-dir"),
			)

			err = api.Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
