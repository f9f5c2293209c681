package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medvoyage/content-service/internal/queue"
)

// SubmitJobRequest represents a single job submission
type SubmitJobRequest struct {
	Type        string          `json:"type" binding:"required"`
	Payload     json.RawMessage `json:"payload" binding:"required"`
	Priority    string          `json:"priority"`
	ScheduledAt int64           `json:"scheduled_at"`
	MaxAttempts int             `json:"max_attempts"`
}

// SubmitJob enqueues one generation job
// POST /internal/jobs
func (h *Handlers) SubmitJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := queue.EnqueueInput{
		Type:        queue.JobType(req.Type),
		Payload:     req.Payload,
		Priority:    queue.Priority(req.Priority),
		MaxAttempts: req.MaxAttempts,
	}
	if req.ScheduledAt > 0 {
		in.ScheduledAt = time.UnixMilli(req.ScheduledAt)
	}

	job, err := h.queue.Enqueue(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob returns one job record
// GET /internal/jobs/:jobId
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobsResponse represents a filtered job listing
type ListJobsResponse struct {
	Jobs  []*queue.Job `json:"jobs"`
	Total int          `json:"total"`
}

// ListJobs returns jobs in the given state, newest listing capped by limit
// GET /internal/jobs?status=pending&limit=50
func (h *Handlers) ListJobs(c *gin.Context) {
	status := queue.Status(c.DefaultQuery("status", string(queue.StatusPending)))
	switch status {
	case queue.StatusPending, queue.StatusProcessing, queue.StatusCompleted,
		queue.StatusFailed, queue.StatusDead:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	jobs, err := h.queue.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, Total: len(jobs)})
}

// CancelJob cancels a job that has not started yet
// DELETE /internal/jobs/:jobId
func (h *Handlers) CancelJob(c *gin.Context) {
	err := h.queue.Cancel(c.Request.Context(), c.Param("jobId"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, queue.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not pending"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
	}
}

// ReplayJob requeues a dead-lettered job with a fresh attempt budget
// POST /internal/jobs/:jobId/replay
func (h *Handlers) ReplayJob(c *gin.Context) {
	job, err := h.queue.Replay(c.Request.Context(), c.Param("jobId"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, job)
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, queue.ErrNotDead):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not dead-lettered"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay job"})
	}
}
