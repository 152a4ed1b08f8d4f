package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/logger"
	"github.com/eaglebank/ledger/shared/middleware"
)

const DefaultSubscribeTimeout = 30 * time.Second

// EventsHandler lets a client wait for the next state change of one entity.
type EventsHandler struct {
	bus     events.Bus
	log     *logger.Logger
	timeout time.Duration
}

func NewEventsHandler(bus events.Bus, log *logger.Logger, timeout time.Duration) *EventsHandler {
	if timeout <= 0 {
		timeout = DefaultSubscribeTimeout
	}
	return &EventsHandler{bus: bus, log: log, timeout: timeout}
}

// Wait returns a handler that blocks until a notification for the entity in
// path parameter param arrives on entityType's channel. A match is written as
// a single SSE frame; a timeout answers 204.
func (h *EventsHandler) Wait(entityType, param string) gin.HandlerFunc {
	topic := events.ChannelFor(entityType)
	return func(c *gin.Context) {
		id, ok := pathID(c, param)
		if !ok {
			return
		}

		msg, err := events.WaitFor(c.Request.Context(), h.bus, topic, id.String(), h.timeout)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			c.Status(http.StatusNoContent)
			return
		case errors.Is(err, context.Canceled):
			// client went away
			c.Abort()
			return
		default:
			h.log.Error("Event subscription failed", "topic", topic, "entityId", id, "error", err)
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to subscribe to events")
			return
		}

		data, err := json.Marshal(msg)
		if err != nil {
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to encode event")
			return
		}
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		_, _ = c.Writer.Write([]byte("data: " + string(data) + "\n\n"))
		c.Writer.Flush()
	}
}
