package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"presence-tracker-backend/internal/heatmap"
)

// GetHeatmap handles GET /api/targets/:id/heatmap and returns the 24
// hourly activity buckets derived from the last N closed sessions.
func (h *Handler) GetHeatmap(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid target ID"})
		return
	}

	lookback := h.heatmapLookback
	if raw := c.Query("lookback"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			lookback = n
		}
	}

	sessions, err := h.store.ClosedSessions(c.Request.Context(), targetID, lookback)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}

	buckets := heatmap.Buckets(sessions)
	c.JSON(http.StatusOK, gin.H{"buckets": buckets[:]})
}
