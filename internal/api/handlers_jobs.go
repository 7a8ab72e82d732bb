// handlers_jobs.go - Processing job handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	jobs JobRunner
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobRunner) JobHandler {
	return &JobHandlerImpl{jobs: jobs}
}

// HandleGetJob returns the status of a processing job
func (h *JobHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}

	return c.JSON(http.StatusOK, job)
}
