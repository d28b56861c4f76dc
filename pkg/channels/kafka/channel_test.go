package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsumerGroup_DistinctPerService(t *testing.T) {
	t.Parallel()

	api := consumerGroup("flowboard-api")
	worker := consumerGroup("flowboard-worker")

	assert.Equal(t, "cg-flowboard-api", api)
	assert.Equal(t, "cg-flowboard-worker", worker)

	// The api relay and the worker consumer read the same topic; a shared
	// group would hand each message to only one of them.
	assert.NotEqual(t, api, worker)
}
