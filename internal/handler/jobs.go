package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/recursiveflow/internal/domain"
)

// JobReader provides read-only access to job snapshots.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.JobContext, error)
	ListJobs(ctx context.Context) []domain.JobContext
}

// JobHandler serves job snapshots for inspection.
type JobHandler struct {
	jobs JobReader
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs JobReader) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// List handles GET /api/v1/jobs.
func (h *JobHandler) List(c echo.Context) error {
	return JSON(c, http.StatusOK, h.jobs.ListJobs(c.Request().Context()))
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobHandler) Get(c echo.Context) error {
	job, err := h.jobs.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, job)
}
