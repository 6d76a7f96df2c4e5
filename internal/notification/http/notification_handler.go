// Package http provides the HTTP handlers that expose order notifications: a
// server-sent events stream for browsers and an ingest endpoint for the worker.
package http

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/orderflow/internal/httputil"
	"github.com/allisson/orderflow/internal/notification"
	customValidation "github.com/allisson/orderflow/internal/validation"
)

const heartbeatInterval = 15 * time.Second

// NotificationHandler handles HTTP requests for order notifications.
type NotificationHandler struct {
	hub       *notification.Hub
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(hub *notification.Hub, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		hub:       hub,
		heartbeat: heartbeatInterval,
		logger:    logger,
	}
}

// StreamHandler streams order events to the client as server-sent events.
// GET /v1/notifications/stream
func (h *NotificationHandler) StreamHandler(c *gin.Context) {
	events, unsubscribe := h.hub.Subscribe(0)
	defer unsubscribe()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Kind, event)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

// IngestHandler accepts an event from another process and broadcasts it.
// POST /internal/notifications
func (h *NotificationHandler) IngestHandler(c *gin.Context) {
	var event notification.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	err := validation.ValidateStruct(&event,
		validation.Field(&event.Kind, validation.Required,
			validation.In(notification.KindOrderCreated, notification.KindOrderStatusChanged)),
		validation.Field(&event.OrderID, validation.NotIn(uuid.Nil).Error("must not be empty")),
		validation.Field(&event.Status, validation.Required),
	)
	if err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	h.hub.Publish(event)
	c.Status(http.StatusAccepted)
}
