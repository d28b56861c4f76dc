package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/flowboard/flowboard/pkg/events"
	"github.com/flowboard/flowboard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	base := events.NewBaseEvent(events.StepUpdateEvent, "run-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, events.StepUpdateEvent, base.Type)
	assert.Equal(t, "run-1", base.RunID)
	assert.WithinDuration(t, time.Now().UTC(), base.Timestamp, time.Second)
}

func TestEventTypes(t *testing.T) {
	t.Parallel()

	run := &models.Run{ID: "run-1", Status: models.RunStatusRunning}

	tests := []struct {
		name     string
		event    interface{ GetType() events.EventType }
		expected events.EventType
	}{
		{"initial", events.InitialSnapshot{Run: run}, events.InitialSnapshotEvent},
		{"stepUpdate", events.StepUpdate{StepIndex: 1, Run: run}, events.StepUpdateEvent},
		{"statusUpdate", events.StatusUpdate{Run: run}, events.StatusUpdateEvent},
		{"waiting", events.RunWaiting{Run: run}, events.RunWaitingEvent},
		{"completed", events.RunCompleted{Run: run}, events.RunCompletedEvent},
		{"failed", events.RunFailed{Run: run, Error: "boom"}, events.RunFailedEvent},
		{"retryAttempt", events.RetryAttempt{StepIndex: 2, Attempt: 3}, events.RetryAttemptEvent},
		{"runQueued", events.RunQueued{}, events.RunQueuedEvent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.event.GetType(), tt.name)
	}
}

func TestRetryAttempt_WireFormat(t *testing.T) {
	t.Parallel()

	event := events.RetryAttempt{
		BaseEvent: events.NewBaseEvent(events.RetryAttemptEvent, "run-1"),
		StepIndex: 2,
		Attempt:   1,
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "retryAttempt", decoded["type"])
	assert.Equal(t, float64(2), decoded["step_index"])
	assert.Equal(t, float64(1), decoded["attempt"])
	_, hasRun := decoded["run"]
	assert.False(t, hasRun, "retryAttempt must not carry a run payload")
}
