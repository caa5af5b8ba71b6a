package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/api/dto"
	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
)

// CreateJob handles POST /api/v1/automation/jobs.
// Compiles the work order into a strategy, registers the job, and launches
// execution. Compilation errors surface as 400 with the reason; the job is
// never created in that case.
func (h *AutomationHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), req.UserID, req.ToWorkOrder(), req.ToPreferences(), req.ToCredentials())
	if err != nil {
		var compErr *domain.CompilationError
		switch {
		case errors.As(err, &compErr):
			h.logger.Warn("Work order rejected",
				slog.String("user_id", req.UserID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrJobLimitReached):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": err.Error(),
			})
		default:
			h.logger.Error("Failed to create job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create job",
			})
		}
		return
	}

	h.logger.Info("Automation job accepted",
		slog.String("job_id", job.JobID),
		slog.String("user_id", job.UserID),
		slog.Int("total_steps", job.Strategy.TotalSteps),
	)

	c.JSON(http.StatusAccepted, dto.NewJobResponse(job))
}

// GetJob handles GET /api/v1/automation/jobs/:job_id.
// An unknown id is an ordinary 404, never an error.
func (h *AutomationHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	view, ok := h.service.JobStatus(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// ListJobs handles GET /api/v1/automation/jobs.
// Lists a user's jobs, newest first, with optional status filter.
func (h *AutomationHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	jobs := h.service.ListJobs(req.UserID, req.Status, req.Limit)

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: jobs})
}

// CancelJob handles POST /api/v1/automation/jobs/:job_id/cancel.
// Cancellation is cooperative: the job goes terminal immediately and any
// in-flight engine call is aborted through its context.
func (h *AutomationHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if !h.service.CancelJob(c.Request.Context(), jobID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	h.logger.Info("Job cancellation requested",
		slog.String("job_id", jobID),
	)

	c.JSON(http.StatusOK, dto.CancelJobResponse{
		JobID:  jobID,
		Status: domain.StatusCancelled,
	})
}
