package liveview

import (
	"context"
	"log/slog"

	"github.com/flowboard/flowboard/pkg/eventbus"
	"github.com/flowboard/flowboard/pkg/events"
)

// liveEvent is any bus event addressed to a single run's viewers.
type liveEvent interface {
	eventbus.Event
	GetRunID() string
}

// Relay routes run events from the event bus into the dispatcher, so viewers
// connected to this process see updates regardless of which process drove
// the run.
type Relay struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewRelay creates a relay feeding the given dispatcher.
func NewRelay(dispatcher *Dispatcher, logger *slog.Logger) *Relay {
	return &Relay{
		dispatcher: dispatcher,
		logger:     logger.With("module", "liveview_relay"),
	}
}

// Attach registers the relay's handlers for every viewer-facing event type.
// The internal runQueued dispatch event is deliberately not relayed.
func (r *Relay) Attach(bus eventbus.EventSubscriber) error {
	viewerEvents := []events.EventType{
		events.StepUpdateEvent,
		events.StatusUpdateEvent,
		events.RunWaitingEvent,
		events.RunCompletedEvent,
		events.RunFailedEvent,
		events.RetryAttemptEvent,
	}

	for _, eventType := range viewerEvents {
		err := bus.Handle(eventType, r.handle)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Relay) handle(ctx context.Context, event any) error {
	live, ok := event.(liveEvent)
	if !ok {
		r.logger.WarnContext(ctx, "ignoring event without run addressing", "event", event)

		return nil
	}

	r.dispatcher.Publish(live.GetRunID(), live)

	return nil
}
