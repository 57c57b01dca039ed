package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/realtime"
)

// Pinger reports whether the primary store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	hub     *realtime.Hub
	version string
	started time.Time
}

func NewHealthHandler(db Pinger, hub *realtime.Hub, version string) *HealthHandler {
	return &HealthHandler{db: db, hub: hub, version: version, started: time.Now()}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"version":     h.version,
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"connections": h.hub.ConnectionsCount(),
		"timestamp":   time.Now().UTC(),
	})
}

// Ready fails while the primary store is unreachable; writes still land in the outbox.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true})
}
