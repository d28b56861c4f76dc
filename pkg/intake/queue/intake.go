// Package queue provides a Redis list intake: external systems push
// document-analysis requests, the worker pops them and starts runs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowboard/flowboard/pkg/protocol"
	redis "github.com/redis/go-redis/v9"
)

type Intake struct {
	Addr     string
	Password string
	DB       int
	Queue    string

	client   redis.UniversalClient
	callback protocol.IntakeCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

func NewIntake(config Config, logger *slog.Logger) (*Intake, error) {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	intake := &Intake{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		Queue:    config.Queue,
		stopCh:   make(chan struct{}),
		logger: logger.With(
			"module", "queue_intake",
			"queue", config.Queue,
		),
	}

	err := intake.Validate(context.Background())
	if err != nil {
		return nil, err
	}

	return intake, nil
}

func (i *Intake) Validate(_ context.Context) error {
	if i.Queue == "" {
		return errors.New("queue intake queue name is required")
	}

	return nil
}

func (i *Intake) Start(ctx context.Context, callback protocol.IntakeCallback) error {
	i.logger.InfoContext(ctx, "Starting queue intake")
	i.callback = callback

	err := i.initializeClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	i.wg.Add(1)

	go i.consume(ctx)

	return nil
}

func (i *Intake) Stop(ctx context.Context) error {
	close(i.stopCh)
	i.wg.Wait()

	if i.client != nil {
		err := i.client.Close()
		if err != nil {
			return fmt.Errorf("failed to close queue client: %w", err)
		}
	}

	i.logger.InfoContext(ctx, "Queue intake stopped")

	return nil
}

func (i *Intake) initializeClient(ctx context.Context) error {
	i.client = redis.NewClient(&redis.Options{
		Addr:     i.Addr,
		Password: i.Password,
		DB:       i.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := i.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	i.logger.InfoContext(ctx, "Connected to Redis", "addr", i.Addr, "db", i.DB)

	return nil
}

func (i *Intake) consume(ctx context.Context) {
	defer i.wg.Done()

	i.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-i.stopCh:
			i.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			i.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := i.processMessage(ctx)
			if err != nil {
				i.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (i *Intake) processMessage(ctx context.Context) error {
	result, err := i.client.BLPop(ctx, 1*time.Second, i.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]
	i.logger.InfoContext(ctx, "Received message from queue", "message", message)

	var req protocol.StartRequest
	if err := json.Unmarshal([]byte(message), &req); err != nil {
		return fmt.Errorf("failed to decode intake message: %w", err)
	}

	if req.DocumentURL == "" {
		return errors.New("intake message has no document_url")
	}

	go func() {
		err := i.callback(ctx, req)
		if err != nil {
			i.logger.ErrorContext(ctx, "Error starting run for intake message", "error", err)
		}
	}()

	return nil
}
