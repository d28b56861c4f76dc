package web

import (
	"bufio"
	"fmt"

	"github.com/flowboard/flowboard/pkg/events"
	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
)

// StreamWorkflow opens the live view channel for one run. The subscriber
// receives one initial snapshot, then every subsequent view push, as SSE
// data frames. Disconnecting deregisters the subscriber; other viewers and
// the driver are unaffected.
func (h *APIHandlers) StreamWorkflow(c fiber.Ctx) error {
	runID := c.Query("instanceId")
	if runID == "" {
		return badRequest(c, "instanceId query parameter is required")
	}

	// Subscribe before reading the snapshot: an event published in between
	// is queued on the subscriber, not lost. A queued frame arriving ahead
	// of the initial snapshot is harmless since the snapshot is newer.
	sub := h.subscribers.Subscribe(runID)

	// Resolved before streaming starts, so an unknown id is a clean 404
	// instead of a broken stream.
	run, err := h.workflowService.GetRun(c.Context(), runID)
	if err != nil {
		h.subscribers.Unsubscribe(sub)

		return handleServiceError(c, err)
	}

	err = h.dispatcher.SendTo(sub, events.InitialSnapshot{
		BaseEvent: events.NewBaseEvent(events.InitialSnapshotEvent, runID),
		Run:       run,
	})
	if err != nil {
		h.subscribers.Unsubscribe(sub)

		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.RequestCtx().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.subscribers.Unsubscribe(sub)

		for frame := range sub.Events() {
			_, err := fmt.Fprintf(w, "data: %s\n\n", frame)
			if err != nil {
				return
			}

			err = w.Flush()
			if err != nil {
				// Viewer went away; the deferred unsubscribe cleans up.
				return
			}
		}
	}))

	return nil
}
