package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"taskhub/backend/internal/notify"
	"taskhub/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// NotificationHandler streams group events as Server-Sent Events. A nil
// subscriber means notifications are disabled.
type NotificationHandler struct {
	groups     services.GroupService
	subscriber notify.Subscriber
	heartbeat  time.Duration
	log        *slog.Logger
}

func NewNotificationHandler(groups services.GroupService, subscriber notify.Subscriber, heartbeat time.Duration, log *slog.Logger) *NotificationHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &NotificationHandler{groups: groups, subscriber: subscriber, heartbeat: heartbeat, log: log}
}

func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.subscriber == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "notifications_disabled",
			"message": "Notifications are not configured",
		})
		return
	}

	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	groupIDs, err := h.groups.AcceptedGroupIDs(ctx, caller.ID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	channels := []string{notify.UserChannel(caller.ID)}
	for _, id := range groupIDs {
		channels = append(channels, notify.GroupChannel(id))
	}

	sub, err := h.subscriber.Subscribe(ctx, channels...)
	if err != nil {
		h.log.Warn("subscribe failed", "user_id", caller.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "notifications_unavailable",
			"message": "Notifications are temporarily unavailable",
		})
		return
	}
	defer sub.Close()

	// The server-wide WriteTimeout would otherwise cut long-lived streams.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("clear write deadline", "error", err)
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"channels": len(channels)})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, open := <-sub.Events():
			if !open {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})
}
