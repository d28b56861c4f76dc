package queue_test

import (
	"log/slog"
	"testing"

	"github.com/flowboard/flowboard/pkg/intake/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIntake(t *testing.T) {
	t.Parallel()

	intake, err := queue.NewIntake(queue.Config{Queue: "flowboard:requests"}, slog.Default())
	require.NoError(t, err)

	// Connection defaults apply until Start dials Redis.
	assert.Equal(t, "localhost:6379", intake.Addr)
	assert.Equal(t, "flowboard:requests", intake.Queue)
}

func TestNewIntake_MissingQueue(t *testing.T) {
	t.Parallel()

	_, err := queue.NewIntake(queue.Config{Addr: "localhost:6379"}, slog.Default())
	assert.ErrorContains(t, err, "queue name is required")
}
