// Package schedule starts demo runs on a cron schedule so the dashboard
// always has live traffic.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowboard/flowboard/pkg/protocol"
	"github.com/robfig/cron/v3"
)

type Intake struct {
	CronExpr    string
	DocumentURL string

	cron     *cron.Cron
	callback protocol.IntakeCallback
	logger   *slog.Logger
}

func NewIntake(cronExpr, documentURL string, logger *slog.Logger) (*Intake, error) {
	intake := &Intake{
		CronExpr:    cronExpr,
		DocumentURL: documentURL,
		logger: logger.With(
			"module", "schedule_intake",
			"cron", cronExpr,
		),
	}

	err := intake.Validate(context.Background())
	if err != nil {
		return nil, err
	}

	return intake, nil
}

func (i *Intake) Validate(_ context.Context) error {
	if i.CronExpr == "" {
		return errors.New("schedule intake cron expression is required")
	}

	if i.DocumentURL == "" {
		return errors.New("schedule intake document url is required")
	}

	if _, err := cron.ParseStandard(i.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

func (i *Intake) Start(ctx context.Context, callback protocol.IntakeCallback) error {
	i.logger.InfoContext(ctx, "Starting schedule intake")
	i.callback = callback

	i.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := i.cron.AddFunc(i.CronExpr, i.run)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	i.logger.InfoContext(ctx, "Added cron job", "id", id)
	i.cron.Start()

	return nil
}

func (i *Intake) run() {
	i.logger.Info("Cron job triggered")

	req := protocol.StartRequest{
		DocumentURL: i.DocumentURL,
		Metadata: map[string]any{
			"source":    "schedule",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	go func() {
		err := i.callback(context.Background(), req)
		if err != nil {
			i.logger.Error("Error starting scheduled run", "error", err)
		}
	}()
}

func (i *Intake) Stop(ctx context.Context) error {
	i.logger.InfoContext(ctx, "Stopping schedule intake")

	if i.cron != nil {
		i.cron.Stop()
	}

	return nil
}
