package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"story-archive-backend/internal/models"
)

// Versioner reports the version of the ffmpeg binary exports depend on.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

type HealthHandler struct {
	ffmpeg Versioner
}

// NewHealthHandler probes ffmpeg on every check when v is non-nil.
func NewHealthHandler(v Versioner) *HealthHandler {
	return &HealthHandler{ffmpeg: v}
}

// Health godoc
// @Summary     Health check
// @Description Returns ok, or degraded when ffmpeg cannot be run
// @Tags        health
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Router      /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	response := models.HealthResponse{Status: "ok"}
	if h.ffmpeg != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		version, err := h.ffmpeg.Version(ctx)
		if err != nil {
			response.Status = "degraded"
			response.Error = err.Error()
		} else {
			response.FFmpeg = version
		}
	}
	c.JSON(http.StatusOK, response)
}
