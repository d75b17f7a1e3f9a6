package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"presence-tracker-backend/internal/ident"
	"presence-tracker-backend/internal/model"
)

// targetResponse is the listing shape consumed by the dashboard.
type targetResponse struct {
	ID              int64        `json:"id"`
	DisplayName     string       `json:"display_name"`
	NumericID       *int64       `json:"numeric_id,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	Handle          string       `json:"handle,omitempty"`
	CurrentStatus   model.Status `json:"current_status"`
	LastSeen        *time.Time   `json:"last_seen,omitempty"`
	TrackingEnabled bool         `json:"tracking_enabled"`
}

func toTargetResponse(t model.Target) targetResponse {
	return targetResponse{
		ID:              t.ID,
		DisplayName:     t.DisplayName,
		NumericID:       t.NumericID,
		Phone:           t.Phone,
		Handle:          t.Handle,
		CurrentStatus:   t.CurrentStatus,
		LastSeen:        t.LastSeen,
		TrackingEnabled: t.TrackingEnabled,
	}
}

// GetTargets handles GET /api/targets: all targets, online ones first.
func (h *Handler) GetTargets(c *gin.Context) {
	var targets []model.Target
	err := h.store.DB().
		Order("CASE WHEN current_status = 'online' THEN 0 ELSE 1 END, display_name").
		Find(&targets).Error
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve targets"})
		return
	}

	responses := make([]targetResponse, 0, len(targets))
	for _, t := range targets {
		responses = append(responses, toTargetResponse(t))
	}
	c.JSON(http.StatusOK, responses)
}

type createTargetRequest struct {
	DisplayName     string `json:"display_name" binding:"required"`
	NumericID       *int64 `json:"numeric_id"`
	Phone           string `json:"phone"`
	Handle          string `json:"handle"`
	TrackingEnabled *bool  `json:"tracking_enabled"`
}

// PostTarget handles POST /api/targets. New targets always start in the
// unknown status; the polling engine owns every later status mutation.
func (h *Handler) PostTarget(c *gin.Context) {
	var req createTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := model.Target{
		DisplayName:     req.DisplayName,
		NumericID:       req.NumericID,
		Phone:           ident.NormalizePhone(req.Phone),
		Handle:          ident.NormalizeHandle(req.Handle),
		CurrentStatus:   model.StatusUnknown,
		TrackingEnabled: true,
	}
	if req.TrackingEnabled != nil {
		target.TrackingEnabled = *req.TrackingEnabled
	}

	if _, err := ident.FromTarget(target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a numeric id, phone, or handle is required"})
		return
	}

	if err := h.store.DB().Create(&target).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toTargetResponse(target))
}

// DeleteTarget handles DELETE /api/targets/:id and cascades the target's
// sessions and events.
func (h *Handler) DeleteTarget(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid target ID"})
		return
	}

	err = h.store.DB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target_id = ?", targetID).Delete(&model.Session{}).Error; err != nil {
			return err
		}
		if err := tx.Where("target_id = ?", targetID).Delete(&model.StatusEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Target{}, targetID).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
