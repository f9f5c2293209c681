package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Queue    string `json:"queue"`
	Database string `json:"database"`
}

// HealthCheck reports queue store and content database connectivity
// GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{Status: "ok"}

	if _, err := h.queue.QueueDepths(c.Request.Context()); err != nil {
		response.Queue = "disconnected"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	response.Queue = "connected"

	if h.dbStatus != nil {
		if err := h.dbStatus(); err != nil {
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
	} else {
		response.Database = "not configured"
	}

	c.JSON(http.StatusOK, response)
}
