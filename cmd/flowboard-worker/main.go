package main

import (
	"context"
	"os"
	"time"

	"github.com/flowboard/flowboard/pkg/cmd"
	"github.com/flowboard/flowboard/pkg/log"
	"github.com/flowboard/flowboard/pkg/otelhelper"
	"github.com/flowboard/flowboard/pkg/services"
	"github.com/flowboard/flowboard/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	command := &cli.Command{
		Name:                  "flowboard-worker",
		EnableShellCompletion: true,
		Usage:                 "Execute queued document-report runs",
		Flags: append(append(templateFlags(), intakeFlags()...),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowboard-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Flowboard Worker")

			var tracer trace.Tracer

			if command.Bool("tracing") {
				var err error

				tracer, err = otelhelper.NewTracer(ctx, "flowboard-worker")
				if err != nil {
					return err
				}
			}

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			template := templateFromFlags(command)

			err := template.Validate(registry)
			if err != nil {
				return err
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowboard-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			s := cmd.NewStore(ctx, logger, command.String("database-url"))
			defer func() {
				err := s.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			r := cmd.NewRunner(ctx, registry, logger, command.String("runner"), nil)

			service := services.NewWorkflow(s, eventBus, r, template, logger)

			intakes, err := startIntakes(ctx, command, service, logger)
			if err != nil {
				return err
			}
			defer stopIntakes(ctx, intakes, logger)

			worker := NewWorkerManager(
				workerID,
				s,
				eventBus,
				r,
				template,
				logger,
				registry,
				tracer,
			)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func templateFlags() []cli.Flag {
	return []cli.Flag{
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
	}
}

func templateFromFlags(command *cli.Command) *workflow.Template {
	return workflow.ReportPipeline(workflow.ReportConfig{
		InferenceEndpoint: command.String("inference-endpoint"),
		InferenceModel:    command.String("inference-model"),
		DeliveryURL:       command.String("delivery-url"),
		ArchiveDir:        command.String("archive-dir"),
		ApprovalTimeout:   command.Duration("approval-timeout"),
		CoolDown:          command.Duration("cool-down"),
	})
}
