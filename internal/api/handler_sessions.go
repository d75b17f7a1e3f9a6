package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"presence-tracker-backend/internal/model"
)

const defaultHistoryLimit = 50

type sessionResponse struct {
	ID              int64      `json:"id"`
	Status          string     `json:"status"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	Open            bool       `json:"open"`
}

// GetSessions handles GET /api/targets/:id/sessions, newest first. This is
// the session-history feed the dashboard renders and exports.
func (h *Handler) GetSessions(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid target ID"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	sessions, err := h.store.SessionHistory(c.Request.Context(), targetID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}

	responses := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, sessionResponse{
			ID:              s.ID,
			Status:          s.Status,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			DurationSeconds: s.DurationSeconds,
			Open:            s.EndTime == nil,
		})
	}
	c.JSON(http.StatusOK, responses)
}

// GetEvents handles GET /api/targets/:id/events: the raw transition log.
func (h *Handler) GetEvents(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid target ID"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var events []model.StatusEvent
	if err := h.store.DB().
		Where("target_id = ?", targetID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve events"})
		return
	}
	c.JSON(http.StatusOK, events)
}
