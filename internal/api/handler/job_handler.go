package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paperreel/backend/internal/api/dto"
	"github.com/paperreel/backend/internal/job"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func toJobResponse(j *job.Job) dto.JobResponse {
	resp := dto.JobResponse{
		JobID:     j.ID,
		PaperRef:  j.PaperRef,
		Status:    string(j.Status),
		Progress:  j.Progress,
		ResultURL: j.ResultURL,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
	if j.Error != nil {
		resp.Error = &dto.JobErrorDTO{
			Kind:    j.Error.Kind,
			Message: j.Error.Message,
		}
	}
	return resp
}

// SubmitJob handles POST /api/v1/jobs
// Registers a paper for video generation and hands it to the worker service
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "paper_ref is required",
		})
		return
	}

	created, err := h.service.Create(c.Request.Context(), req.PaperRef)
	if err != nil {
		h.logger.Error("Failed to create job",
			slog.String("paper_ref", req.PaperRef),
			slog.String("error", err.Error()),
		)
		c.JSON(statusForError(err), gin.H{
			"error": "Failed to create job",
		})
		return
	}

	message, err := json.Marshal(struct {
		JobID string `json:"job_id"`
	}{JobID: created.ID})
	if err != nil {
		h.logger.Error("Failed to encode job message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	// The record stays PENDING if publishing fails; the client sees 503
	// together with the job id and can resubmit.
	if err := h.publisher.PublishWithRetry(c.Request.Context(), message, "application/json"); err != nil {
		h.logger.Error("Failed to publish job message",
			slog.String("job_id", created.ID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Job created but could not be enqueued",
			"job_id": created.ID,
		})
		return
	}

	h.logger.Info("Job submitted",
		slog.String("job_id", created.ID),
		slog.String("paper_ref", created.PaperRef),
	)

	c.JSON(http.StatusCreated, toJobResponse(created))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the latest committed snapshot; the frontend polls this endpoint
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Debug("Invalid job_id format",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	snapshot, err := h.service.Status(c.Request.Context(), jobID)
	if err != nil {
		if job.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(statusForError(err), gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobResponse(snapshot))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	if req.Status != "" && !job.Status(req.Status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid status filter",
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := job.Filter{
		Status:   job.Status(req.Status),
		PaperRef: req.PaperRef,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(statusForError(err), gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	items := make([]dto.JobResponse, len(jobs))
	for i := range jobs {
		items[i] = toJobResponse(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor, err = EncodeJobCursor(&job.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       items,
		NextCursor: nextCursor,
	})
}

// Stats handles GET /api/v1/stats
// Reports how many jobs sit in each lifecycle state
func (h *JobHandler) Stats(c *gin.Context) {
	counts, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count jobs", slog.String("error", err.Error()))
		c.JSON(statusForError(err), gin.H{
			"error": "Failed to count jobs",
		})
		return
	}

	resp := dto.StatsResponse{Counts: make(map[string]int, 4)}
	for _, status := range []job.Status{job.StatusPending, job.StatusRunning, job.StatusSucceeded, job.StatusFailed} {
		resp.Counts[string(status)] = counts[status]
		resp.Total += counts[status]
	}

	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health
// Reports liveness plus the state of the backing database and queue
func (h *JobHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	body := gin.H{
		"status":  "healthy",
		"service": "paperreel-api-service",
	}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			body["database"] = "down"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "up"
		}
	}

	if h.publisher != nil {
		if h.publisher.IsConnected() {
			body["queue"] = "up"
		} else {
			body["queue"] = "down"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, body)
}
