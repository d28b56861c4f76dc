// Package events defines the event types broadcast for run lifecycle changes.
package events

import (
	"time"

	"github.com/flowboard/flowboard/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the single stream carrying all run events. Kafka deployments key
// messages by run id so per-run ordering survives partitioning.
const Topic = "flowboard.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Live-view events, streamed to subscribed dashboards.
	InitialSnapshotEvent EventType = "initial"
	StepUpdateEvent      EventType = "stepUpdate"
	StatusUpdateEvent    EventType = "statusUpdate"
	RunWaitingEvent      EventType = "waiting"
	RunCompletedEvent    EventType = "completed"
	RunFailedEvent       EventType = "failed"
	RetryAttemptEvent    EventType = "retryAttempt"

	// Internal dispatch event consumed by workers, never streamed to viewers.
	RunQueuedEvent EventType = "runQueued"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// GetRunID returns the run the event is addressed to.
func (b BaseEvent) GetRunID() string {
	return b.RunID
}

// NewBaseEvent creates the common envelope for a run event.
func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
	}
}

// RunQueued signals a freshly created run awaiting worker pickup.
type RunQueued struct {
	BaseEvent

	Params map[string]any `json:"params,omitempty"`
}

func (e RunQueued) GetType() EventType { return RunQueuedEvent }

// InitialSnapshot carries the current full view, sent once on subscribe.
type InitialSnapshot struct {
	BaseEvent

	Run *models.Run `json:"run"`
}

func (e InitialSnapshot) GetType() EventType { return InitialSnapshotEvent }

// StepUpdate carries the full view after a step transition.
type StepUpdate struct {
	BaseEvent

	StepIndex int         `json:"step_index"`
	Run       *models.Run `json:"run"`
}

func (e StepUpdate) GetType() EventType { return StepUpdateEvent }

// StatusUpdate carries the full view after a run-level status change.
type StatusUpdate struct {
	BaseEvent

	Run *models.Run `json:"run"`
}

func (e StatusUpdate) GetType() EventType { return StatusUpdateEvent }

// RunWaiting signals the run is blocked on an approval event.
type RunWaiting struct {
	BaseEvent

	Run *models.Run `json:"run"`
}

func (e RunWaiting) GetType() EventType { return RunWaitingEvent }

// RunCompleted signals the run finished with all steps completed.
type RunCompleted struct {
	BaseEvent

	Run *models.Run `json:"run"`
}

func (e RunCompleted) GetType() EventType { return RunCompletedEvent }

// RunFailed signals the run reached a terminal failure.
type RunFailed struct {
	BaseEvent

	Run   *models.Run `json:"run"`
	Error string      `json:"error"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

// RetryAttempt is a lightweight progress ping published before every attempt
// of a retrying unit of work, the first attempt included. It carries no run
// payload.
type RetryAttempt struct {
	BaseEvent

	StepIndex int `json:"step_index"`
	Attempt   int `json:"attempt"`
}

func (e RetryAttempt) GetType() EventType { return RetryAttemptEvent }
