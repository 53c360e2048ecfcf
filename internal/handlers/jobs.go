package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"story-archive-backend/internal/database"
	"story-archive-backend/internal/models"
	"story-archive-backend/internal/services"
)

const maxJobsLimit = 500

type JobsHandler struct {
	service *services.ExportService
}

func NewJobsHandler(service *services.ExportService) *JobsHandler {
	return &JobsHandler{service: service}
}

// ListJobs godoc
// @Summary     List export jobs
// @Description Returns the most recent exports, newest first
// @Tags        jobs
// @Produce     json
// @Security    Bearer
// @Param       limit query int false "Maximum number of jobs (default 50)"
// @Success     200 {object} models.ExportJobsResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api.php?action=list-export-jobs [get]
func (h *JobsHandler) ListJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxJobsLimit {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), limit)
	if err != nil {
		h.jobError(c, err)
		return
	}

	response := models.ExportJobsResponse{Jobs: make([]models.ExportJobResponse, len(jobs))}
	for i, job := range jobs {
		response.Jobs[i] = models.NewExportJobResponse(job)
	}
	c.JSON(http.StatusOK, response)
}

// GetJob godoc
// @Summary     Get one export job
// @Tags        jobs
// @Produce     json
// @Security    Bearer
// @Param       id query string true "Job ID (UUID), as returned in X-Export-Job-ID"
// @Success     200 {object} models.ExportJobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api.php?action=get-export-job [get]
func (h *JobsHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Query("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid job id"})
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewExportJobResponse(*job))
}

func (h *JobsHandler) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrJobLogDisabled):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "export job log is disabled"})
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "job not found"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read export jobs", Message: err.Error()})
	}
}
