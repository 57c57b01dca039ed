package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/fallback"
)

// OutboxStats reports the fallback outbox backlog.
type OutboxStats interface {
	Stats(ctx context.Context) (fallback.Stats, error)
}

type AdminHandler struct {
	outbox OutboxStats
}

func NewAdminHandler(outbox OutboxStats) *AdminHandler {
	return &AdminHandler{outbox: outbox}
}

func (h *AdminHandler) GetOutboxStats(c *gin.Context) {
	if h.outbox == nil {
		c.JSON(http.StatusOK, fallback.Stats{})
		return
	}

	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
