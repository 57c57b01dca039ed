package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/services"
)

type AnnouncementHandler struct {
	announcements *services.AnnouncementService
}

func NewAnnouncementHandler(announcements *services.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

func pagination(page, limit int, total int64) gin.H {
	totalPages := (total + int64(limit) - 1) / int64(limit)
	return gin.H{
		"page":        page,
		"limit":       limit,
		"total":       total,
		"total_pages": totalPages,
	}
}

func (h *AnnouncementHandler) CreateAnnouncement(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req services.CreateAnnouncementInput
	if !bindJSON(c, &req) {
		return
	}

	a, queued, err := h.announcements.Create(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(createdStatus(queued), a)
}

func (h *AnnouncementHandler) GetAnnouncements(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	page, limit := services.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))

	items, total, err := h.announcements.List(c.Request.Context(), who.Neighborhood, c.Query("category"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"announcements": items,
		"pagination":    pagination(page, limit, total),
	})
}

func (h *AnnouncementHandler) GetAnnouncement(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	a, err := h.announcements.Get(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) UpdateAnnouncement(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateAnnouncementInput
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.announcements.Update(c.Request.Context(), who, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

func (h *AnnouncementHandler) DeleteAnnouncement(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.announcements.Delete(c.Request.Context(), who, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Announcement deleted successfully",
	})
}

type pinRequest struct {
	Pinned *bool `json:"pinned" binding:"required"`
}

func (h *AnnouncementHandler) PinAnnouncement(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req pinRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.announcements.SetPinned(c.Request.Context(), who, id, *req.Pinned)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}
