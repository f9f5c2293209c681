package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medvoyage/content-service/internal/queue"
	"github.com/medvoyage/content-service/internal/reports"
)

// QueueStatsResponse is the dashboard snapshot: live depths, today's
// counters, and the newest dead-letter entries.
type QueueStatsResponse struct {
	Depths         queue.Depths           `json:"depths"`
	Today          queue.DayStats         `json:"today"`
	RecentFailures []queue.FailureSummary `json:"recent_failures"`
}

// GetQueueStats returns the current queue snapshot
// GET /internal/stats
func (h *Handlers) GetQueueStats(c *gin.Context) {
	ctx := c.Request.Context()

	depths, err := h.queue.QueueDepths(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue depths"})
		return
	}
	today, err := h.queue.StatsForDay(ctx, timeNow())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read daily stats"})
		return
	}
	failures, err := h.queue.RecentFailures(ctx, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read recent failures"})
		return
	}

	c.JSON(http.StatusOK, QueueStatsResponse{
		Depths:         depths,
		Today:          today,
		RecentFailures: failures,
	})
}

// GetStatsRange returns per-day counters for the trailing window
// GET /internal/stats/daily?days=7
func (h *Handlers) GetStatsRange(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 35 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 35"})
		return
	}

	stats, err := h.queue.StatsRange(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read daily stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": stats})
}

// ExportStats streams the trailing daily counters as an XLSX workbook
// GET /internal/stats/export?days=30
func (h *Handlers) ExportStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 1 || days > 35 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 35"})
		return
	}

	stats, err := h.queue.StatsRange(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read daily stats"})
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="generation-stats.xlsx"`)
	if err := reports.WriteStatsWorkbook(c.Writer, stats); err != nil {
		h.logger.Error().Err(err).Msg("Failed to stream stats workbook")
	}
}
