package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/services"
)

type UserHandler struct {
	points *services.PointsService
}

func NewUserHandler(points *services.PointsService) *UserHandler {
	return &UserHandler{points: points}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	profile, err := h.points.Profile(c.Request.Context(), who.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) GetLeaderboard(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	entries, err := h.points.Leaderboard(c.Request.Context(), who.Neighborhood, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"neighborhood": who.Neighborhood,
		"leaderboard":  entries,
	})
}
