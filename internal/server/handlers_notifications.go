package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/gin-gonic/gin"
)

type notificationPayload struct {
	NotificationID   string             `json:"notification_id"`
	Type             notifications.Type `json:"type"`
	ReferenceKind    content.Kind       `json:"reference_kind"`
	ReferenceID      string             `json:"reference_id"`
	Message          string             `json:"message"`
	IsRead           bool               `json:"is_read"`
	CreatedAtSeconds int64              `json:"created_at_s"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	unreadOnly := false
	if raw := c.Query("unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid_unread_filter")
			return
		}
		unreadOnly = parsed
	}

	var (
		items []notifications.Notification
		err   error
	)
	if unreadOnly {
		items, err = h.inbox.ListUnread(c.Request.Context(), userID)
	} else {
		items, err = h.inbox.List(c.Request.Context(), userID)
	}
	if err != nil {
		h.respondError(c, "list_notifications", err)
		return
	}
	unread, err := h.inbox.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "list_notifications", err)
		return
	}

	response := make([]notificationPayload, 0, len(items))
	for _, item := range items {
		response = append(response, notificationPayload{
			NotificationID:   item.NotificationID,
			Type:             item.Type,
			ReferenceKind:    item.ReferenceKind,
			ReferenceID:      item.ReferenceID,
			Message:          item.Message,
			IsRead:           item.IsRead,
			CreatedAtSeconds: item.CreatedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": response, "unread": unread})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	if err := h.inbox.MarkRead(c.Request.Context(), c.GetString(userIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, "mark_read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	updated, err := h.inbox.MarkAllRead(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, "mark_all_read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
