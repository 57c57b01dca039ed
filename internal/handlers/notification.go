package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/services"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	unreadOnly := c.Query("unread") == "true"

	items, err := h.notifications.List(c.Request.Context(), who.UserID, unreadOnly, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), who.UserID, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	n, err := h.notifications.MarkAllRead(c.Request.Context(), who.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req services.RegisterDeviceInput
	if !bindJSON(c, &req) {
		return
	}

	if err := h.notifications.RegisterDevice(c.Request.Context(), who.UserID, req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device registered"})
}
