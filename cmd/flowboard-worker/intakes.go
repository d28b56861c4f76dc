package main

import (
	"context"
	"log/slog"

	"github.com/flowboard/flowboard/pkg/intake/queue"
	"github.com/flowboard/flowboard/pkg/intake/schedule"
	"github.com/flowboard/flowboard/pkg/protocol"
	"github.com/flowboard/flowboard/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func intakeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "queue-addr",
			Usage:   "Redis address for the request intake queue",
			Sources: cli.EnvVars("QUEUE_ADDR"),
		},
		&cli.StringFlag{
			Name:    "queue-name",
			Usage:   "Redis list external systems push run requests to (empty disables the queue intake)",
			Sources: cli.EnvVars("QUEUE_NAME"),
		},
		&cli.StringFlag{
			Name:    "queue-password",
			Usage:   "Redis password for the request intake queue",
			Sources: cli.EnvVars("QUEUE_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "demo-cron",
			Usage:   "Cron expression for scheduled demo runs (empty disables them)",
			Sources: cli.EnvVars("DEMO_CRON"),
		},
		&cli.StringFlag{
			Name:    "demo-document-url",
			Usage:   "Document fetched by scheduled demo runs",
			Sources: cli.EnvVars("DEMO_DOCUMENT_URL"),
		},
	}
}

// startIntakes starts the configured run sources. Each one feeds StartRun;
// none are required.
func startIntakes(
	ctx context.Context,
	command *cli.Command,
	service *services.Workflow,
	logger *slog.Logger,
) ([]protocol.Intake, error) {
	callback := func(ctx context.Context, req protocol.StartRequest) error {
		params := map[string]any{"document_url": req.DocumentURL}
		if len(req.Metadata) > 0 {
			params["metadata"] = req.Metadata
		}

		_, err := service.StartRun(ctx, params)

		return err
	}

	var intakes []protocol.Intake

	if queueName := command.String("queue-name"); queueName != "" {
		queueIntake, err := queue.NewIntake(queue.Config{
			Addr:     command.String("queue-addr"),
			Password: command.String("queue-password"),
			Queue:    queueName,
		}, logger)
		if err != nil {
			return nil, err
		}

		err = queueIntake.Start(ctx, callback)
		if err != nil {
			return nil, err
		}

		intakes = append(intakes, queueIntake)
	}

	if cronExpr := command.String("demo-cron"); cronExpr != "" {
		scheduleIntake, err := schedule.NewIntake(cronExpr, command.String("demo-document-url"), logger)
		if err != nil {
			return nil, err
		}

		err = scheduleIntake.Start(ctx, callback)
		if err != nil {
			return nil, err
		}

		intakes = append(intakes, scheduleIntake)
	}

	return intakes, nil
}

func stopIntakes(ctx context.Context, intakes []protocol.Intake, logger *slog.Logger) {
	for _, i := range intakes {
		err := i.Stop(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to stop intake", "error", err)
		}
	}
}
