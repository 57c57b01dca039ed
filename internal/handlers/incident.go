package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"comunitarr/internal/models"
	"comunitarr/internal/services"
)

type IncidentHandler struct {
	incidents *services.IncidentService
}

func NewIncidentHandler(incidents *services.IncidentService) *IncidentHandler {
	return &IncidentHandler{incidents: incidents}
}

func (h *IncidentHandler) ReportIncident(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req services.ReportIncidentInput
	if !bindJSON(c, &req) {
		return
	}

	incident, queued, err := h.incidents.Report(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(createdStatus(queued), incident)
}

func (h *IncidentHandler) GetIncidents(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	page, limit := services.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))

	items, total, err := h.incidents.List(c.Request.Context(), models.IncidentFilter{
		Neighborhood: who.Neighborhood,
		Status:       c.Query("status"),
		Category:     c.Query("category"),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"incidents":  items,
		"pagination": pagination(page, limit, total),
	})
}

// GetNearbyIncidents serves ?lat=..&lng=..&radius_km=..
func (h *IncidentHandler) GetNearbyIncidents(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}
	radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)

	items, err := h.incidents.Nearby(c.Request.Context(), who.Neighborhood, lat, lng, radius, queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"incidents": items})
}

func (h *IncidentHandler) GetIncident(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	incident, err := h.incidents.Get(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

func (h *IncidentHandler) Upvote(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	incident, err := h.incidents.Upvote(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"upvotes": incident.UpvoteCount(), "upvoted": true})
}

func (h *IncidentHandler) RemoveUpvote(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	incident, err := h.incidents.RemoveUpvote(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"upvotes": incident.UpvoteCount(), "upvoted": false})
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=open in_progress resolved dismissed"`
}

func (h *IncidentHandler) ChangeStatus(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	incident, err := h.incidents.ChangeStatus(c.Request.Context(), who, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

func (h *IncidentHandler) DeleteIncident(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.incidents.Delete(c.Request.Context(), who, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Incident deleted successfully"})
}
