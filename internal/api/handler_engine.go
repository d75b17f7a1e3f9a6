package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetEngineStatus handles GET /api/engine/status: the scheduler's liveness
// flag for the dashboard.
func (h *Handler) GetEngineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":   h.engine.State(),
		"polling": h.engine.Polling(),
	})
}
