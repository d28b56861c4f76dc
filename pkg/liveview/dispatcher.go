package liveview

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowboard/flowboard/pkg/eventbus"
)

// Dispatcher pushes serialized events to every registered subscriber of a
// run. Delivery is best effort: a subscriber that cannot keep up is dropped
// so one stalled viewer never blocks the rest, and no delivery failure ever
// surfaces to the publisher.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.With("module", "liveview"),
	}
}

// Publish serializes the event once and offers it to every subscriber of the
// run. Subscribers whose buffers are full are unsubscribed and their
// channels closed; their disconnect path handles the rest.
func (d *Dispatcher) Publish(runID string, event eventbus.Event) {
	subs := d.registry.Subscribers(runID)
	if len(subs) == 0 {
		return
	}

	frame, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to serialize event for broadcast",
			"run_id", runID, "event_type", event.GetType(), "error", err)

		return
	}

	for _, sub := range subs {
		if !d.offer(sub, frame) {
			d.logger.Debug("dropping slow subscriber", "run_id", runID, "subscriber", sub.id)
			d.registry.Unsubscribe(sub)
		}
	}
}

// SendTo delivers one event directly to a single subscriber, bypassing the
// fan-out. Used for the initial snapshot on subscribe.
func (d *Dispatcher) SendTo(sub *Subscriber, event eventbus.Event) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if !d.offer(sub, frame) {
		return fmt.Errorf("subscriber %s buffer full", sub.id)
	}

	return nil
}

// offer attempts a non-blocking send, recovering the send-on-closed-channel
// panic that a concurrent unsubscribe can produce. A false return means the
// subscriber did not take the frame.
func (d *Dispatcher) offer(sub *Subscriber, frame []byte) (delivered bool) {
	defer func() {
		if recover() != nil {
			delivered = false
		}
	}()

	select {
	case sub.ch <- frame:
		return true
	default:
		return false
	}
}
