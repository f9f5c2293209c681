package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medvoyage/content-service/internal/queue"
)

// TriggerReclaim runs the stale-job sweep immediately
// POST /internal/admin/reclaim
func (h *Handlers) TriggerReclaim(c *gin.Context) {
	n, err := h.queue.ReclaimStale(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reclaim failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reclaimed": n})
}

// TriggerPurge runs retention cleanup immediately
// POST /internal/admin/purge
func (h *Handlers) TriggerPurge(c *gin.Context) {
	res, err := h.queue.Purge(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": res.Completed, "dead": res.Dead})
}

// TriggerPromote promotes all due delayed jobs immediately
// POST /internal/admin/promote
func (h *Handlers) TriggerPromote(c *gin.Context) {
	total := 0
	for _, t := range queue.AllTypes {
		n, err := h.queue.PromoteDue(c.Request.Context(), t)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "promote failed"})
			return
		}
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"promoted": total})
}
