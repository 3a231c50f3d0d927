package api

import (
	"io"
	"net/http"
	"time"

	"food-order-service/internal/models"
	"food-order-service/internal/redisclient"
	"food-order-service/internal/service"
	"food-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// recipientOf maps the caller to their notification audience. Operators
// share the admin feed.
func recipientOf(a service.Actor) models.Recipient {
	if a.IsOperator() {
		return models.AdminRecipient()
	}
	id, _ := a.UserID()
	return models.UserRecipient(id)
}

func (h *Handler) listNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	page := pageOf(c)
	if page.Limit <= 0 || page.Limit > 100 {
		page.Limit = 20
	}

	list, err := h.Notifications.ListNotifications(c.Request.Context(), recipientOf(actorOf(c)), unreadOnly, page.Limit, page.Offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *Handler) unreadCount(c *gin.Context) {
	n, err := h.Notifications.CountUnreadNotifications(c.Request.Context(), recipientOf(actorOf(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (h *Handler) markRead(c *gin.Context) {
	if err := h.Notifications.MarkNotificationRead(c.Request.Context(), recipientOf(actorOf(c)), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) markAllRead(c *gin.Context) {
	n, err := h.Notifications.MarkAllNotificationsRead(c.Request.Context(), recipientOf(actorOf(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// streamNotifications relays the caller's realtime channel as server-sent
// events. Anything published while nobody is connected is not replayed;
// clients catch up from the list endpoint.
func (h *Handler) streamNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	channel := redisclient.NotificationChannel(recipientOf(actorOf(c)))

	sub, err := h.Realtime.Subscribe(ctx, channel)
	if err != nil {
		util.GetLogger().Warn("Realtime subscribe failed", zap.String("channel", channel), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime channel unavailable"})
		return
	}
	defer sub.Close()

	messages := sub.Channel()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			c.SSEvent("notification", msg.Payload)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}
