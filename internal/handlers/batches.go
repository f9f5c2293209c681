package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medvoyage/content-service/internal/locales"
	"github.com/medvoyage/content-service/internal/queue"
)

// SubmitBatchRequest represents a keyword batch submission
type SubmitBatchRequest struct {
	Keywords    []string `json:"keywords" binding:"required,min=1,max=100"`
	Locale      string   `json:"locale"`
	CategoryID  string   `json:"category_id"`
	Priority    string   `json:"priority"`
	RequestedBy string   `json:"requested_by"`
	AutoPublish bool     `json:"auto_publish"`
}

// SubmitBatchResponse returns the created batch and its member job ids
type SubmitBatchResponse struct {
	Batch  *queue.Batch `json:"batch"`
	JobIDs []string     `json:"job_ids"`
}

// SubmitBatch enqueues one content-generation job per keyword
// POST /internal/batches
func (h *Handlers) SubmitBatch(c *gin.Context) {
	var req SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	locale, err := locales.Normalize(req.Locale)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, jobs, err := h.queue.EnqueueBatch(c.Request.Context(), queue.BatchInput{
		Keywords:    req.Keywords,
		Locale:      locale,
		CategoryID:  req.CategoryID,
		Priority:    queue.Priority(req.Priority),
		RequestedBy: req.RequestedBy,
		AutoPublish: req.AutoPublish,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	c.JSON(http.StatusCreated, SubmitBatchResponse{Batch: batch, JobIDs: ids})
}

// GetBatch returns the batch record
// GET /internal/batches/:batchId
func (h *Handlers) GetBatch(c *gin.Context) {
	batch, err := h.queue.GetBatch(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		if errors.Is(err, queue.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// GetBatchProgress returns the batch plus the member currently in flight
// GET /internal/batches/:batchId/progress
func (h *Handlers) GetBatchProgress(c *gin.Context) {
	progress, err := h.queue.Progress(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		if errors.Is(err, queue.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch progress"})
		return
	}
	c.JSON(http.StatusOK, progress)
}
