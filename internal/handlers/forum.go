package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/models"
	"comunitarr/internal/realtime"
	"comunitarr/internal/services"
	"comunitarr/pkg/auth"
)

type ForumHandler struct {
	forum *services.ForumService
}

func NewForumHandler(forum *services.ForumService) *ForumHandler {
	return &ForumHandler{forum: forum}
}

func (h *ForumHandler) PostMessage(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req services.PostMessageInput
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.forum.PostMessage(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := createdStatus(res.Queued)
	if !res.Created {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *ForumHandler) ListMessages(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before timestamp"})
			return
		}
		before = t
	}

	messages, err := h.forum.ListMessages(c.Request.Context(), who.Neighborhood, c.Query("room"), before, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *ForumHandler) DeleteMessage(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.forum.DeleteMessage(c.Request.Context(), who, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

// SendFromSocket lets websocket clients post through the same path as REST.
func (h *ForumHandler) SendFromSocket(ctx context.Context, who auth.Identity, key models.RoomKey, req realtime.SendRequest) error {
	_, err := h.forum.PostMessage(ctx, who, services.PostMessageInput{
		Room:     key.Room,
		Content:  req.Content,
		Kind:     req.Kind,
		MediaURL: req.MediaURL,
		ClientID: req.ClientID,
	})
	return err
}
