package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"comunitarr/internal/middleware"
	"comunitarr/internal/models"
	"comunitarr/internal/realtime"
	"comunitarr/pkg/auth"
	"comunitarr/pkg/validator"
)

type WebSocketHandler struct {
	hub        *realtime.Hub
	jwtManager *auth.JWTManager
	sender     realtime.Sender
	upgrader   websocket.Upgrader
	log        *logrus.Entry
}

func NewWebSocketHandler(hub *realtime.Hub, jwtManager *auth.JWTManager, sender realtime.Sender, allowedOrigins []string, log *logrus.Entry) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		jwtManager: jwtManager,
		sender:     sender,
		upgrader:   realtime.NewUpgrader(allowedOrigins),
		log:        log,
	}
}

// HandleWebSocket serves GET /ws?token=...&room=...
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
		return
	}

	who, err := middleware.Authenticate(h.jwtManager, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	room := strings.ToLower(strings.TrimSpace(c.Query("room")))
	if room == "" {
		room = models.DefaultRoom
	}
	if !validator.IsSlug(room) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	key := models.RoomKey{Neighborhood: who.Neighborhood, Room: room}
	h.log.WithFields(logrus.Fields{
		"user_id": who.UserID.Hex(),
		"room":    key.String(),
	}).Debug("websocket connected")

	h.hub.Serve(conn, who, key, h.sender)
}
