package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/export"
	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/models"
	"story-archive-backend/internal/services"
)

const (
	JobIDHeader = "X-Export-Job-ID"

	overlayFieldPrefix = "overlay_"
	maxConcatInputs    = 500
)

type exportFunc func(ctx context.Context, ws *export.Workspace) (*export.Result, error)

type ExportHandler struct {
	pipeline *export.Pipeline
	service  *services.ExportService
	tempDir  string
	maxMem   int64
	logger   *slog.Logger
}

// NewExportHandler serves the ffmpeg exports. maxUploadMB is the multipart
// memory threshold; larger uploads spill to temp files.
func NewExportHandler(pipeline *export.Pipeline, service *services.ExportService, tempDir string, maxUploadMB int64, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		pipeline: pipeline,
		service:  service,
		tempDir:  tempDir,
		maxMem:   maxUploadMB << 20,
		logger:   logging.NewComponentLogger(logger, "export-handler"),
	}
}

// ProcessVideo godoc
// @Summary     Overlay a PNG on an archived video
// @Description Composites the uploaded overlay over the whole video and returns the result.
// @Tags        export
// @Accept      multipart/form-data
// @Produce     video/mp4
// @Security    Bearer
// @Param       input_path  formData string true "Archive path of the video"
// @Param       overlay_png formData file   true "Full-frame PNG overlay"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /api.php?action=process-video [post]
func (h *ExportHandler) ProcessVideo(c *gin.Context) {
	if !h.parseForm(c) {
		return
	}

	req := export.OverlayRequest{InputPath: c.PostForm("input_path")}
	if fh, err := c.FormFile("overlay_png"); err == nil {
		req.Overlay = export.FromFileHeader(fh)
	}

	h.run(c, models.ExportKindOverlay, export.ExportedName(req.InputPath), 1,
		func(ctx context.Context, ws *export.Workspace) (*export.Result, error) {
			return h.pipeline.ProcessOverlay(ctx, ws, req)
		})
}

// ConcatenateVideos godoc
// @Summary     Concatenate uploaded videos
// @Description Joins video_0 .. video_{n-1} in order without re-encoding.
// @Tags        export
// @Accept      multipart/form-data
// @Produce     video/mp4
// @Security    Bearer
// @Param       video_count     formData int    true  "Number of uploaded videos"
// @Param       video_0         formData file   true  "First video; repeat as video_1, video_2, ..."
// @Param       output_filename formData string false "Download name (default concatenated_output.mp4)"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /api.php?action=concatenate-videos [post]
func (h *ExportHandler) ConcatenateVideos(c *gin.Context) {
	if !h.parseForm(c) {
		return
	}

	var form models.ConcatenateRequest
	if err := c.ShouldBind(&form); err != nil || form.VideoCount <= 0 || form.VideoCount > maxConcatInputs {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid video count"})
		return
	}

	files := formFiles(c)
	videos := make([]export.Upload, 0, form.VideoCount)
	for i := 0; i < form.VideoCount; i++ {
		if fhs := files["video_"+strconv.Itoa(i)]; len(fhs) > 0 {
			videos = append(videos, export.FromFileHeader(fhs[0]))
		}
	}
	if len(videos) != form.VideoCount {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Expected " + strconv.Itoa(form.VideoCount) + " video files, received " + strconv.Itoa(len(videos)),
		})
		return
	}

	req := export.ConcatRequest{Videos: videos, OutputFilename: form.OutputFilename}
	h.run(c, models.ExportKindConcatenate, export.OutputName(req.OutputFilename, export.DefaultConcatName), len(videos),
		func(ctx context.Context, ws *export.Workspace) (*export.Result, error) {
			return h.pipeline.Concatenate(ctx, ws, req)
		})
}

// ExportVisualExperience godoc
// @Summary     Render stories into one video
// @Description Each story becomes a segment labelled "Story i/n"; images are held for IMAGE_SECONDS.
// @Description Stories that are missing or fail to encode are skipped.
// @Tags        export
// @Accept      multipart/form-data
// @Produce     video/mp4
// @Security    Bearer
// @Param       story_paths     formData string true  "JSON array of {path, username, type} objects or plain paths"
// @Param       output_filename formData string false "Download name (default visual_experience.mp4)"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /api.php?action=export-visual-experience [post]
func (h *ExportHandler) ExportVisualExperience(c *gin.Context) {
	if !h.parseForm(c) {
		return
	}

	var form models.VisualExperienceRequest
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid form", Message: err.Error()})
		return
	}

	stories, err := parseStoryRefs(form.StoryPaths)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid story_paths", Message: err.Error()})
		return
	}

	req := export.VisualRequest{Stories: stories, OutputFilename: form.OutputFilename}
	h.run(c, models.ExportKindVisual, export.OutputName(req.OutputFilename, export.DefaultVisualName), len(stories),
		func(ctx context.Context, ws *export.Workspace) (*export.Result, error) {
			return h.pipeline.VisualExperience(ctx, ws, req)
		})
}

// ExportVisualExperienceWithOverlays godoc
// @Summary     Render stories with client-drawn overlays
// @Description Each segment is composited with overlay_{overlayIndex} (the segment index when unset).
// @Description Missing stories become black placeholder clips; missing or broken overlays fall back to the bare story.
// @Tags        export
// @Accept      multipart/form-data
// @Produce     video/mp4
// @Security    Bearer
// @Param       story_segments  formData string true  "JSON array of {path, username, type, overlayIndex}"
// @Param       overlay_0       formData file   false "Overlay PNG of segment 0; repeat per segment"
// @Param       output_filename formData string false "Download name (default visual_experience.mp4)"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /api.php?action=export-visual-experience-with-overlays [post]
func (h *ExportHandler) ExportVisualExperienceWithOverlays(c *gin.Context) {
	if !h.parseForm(c) {
		return
	}

	var form models.VisualExperienceRequest
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid form", Message: err.Error()})
		return
	}

	var segments []models.StorySegment
	if raw := strings.TrimSpace(form.StorySegments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &segments); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid story_segments", Message: err.Error()})
			return
		}
	}

	req := export.OverlayExperienceRequest{
		Segments:       segments,
		Overlays:       collectOverlays(formFiles(c)),
		OutputFilename: form.OutputFilename,
	}
	h.run(c, models.ExportKindVisualWithOverlay, export.OutputName(req.OutputFilename, export.DefaultVisualName), len(segments),
		func(ctx context.Context, ws *export.Workspace) (*export.Result, error) {
			return h.pipeline.VisualExperienceWithOverlays(ctx, ws, req)
		})
}

// run executes build inside a fresh workspace, streams the result and removes
// the workspace afterwards whatever happened.
func (h *ExportHandler) run(c *gin.Context, kind, filename string, inputs int, build exportFunc) {
	ctx := c.Request.Context()

	ws, err := export.NewWorkspace(h.tempDir, h.logger)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create temp directory", Message: err.Error()})
		return
	}
	defer ws.Cleanup()

	job := h.service.Begin(ctx, kind, filename, inputs)

	var result *export.Result
	err = h.service.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = build(ctx, ws)
		return err
	})
	if err != nil {
		h.service.Fail(context.WithoutCancel(ctx), job, err)
		c.Error(err)
		h.exportError(c, err)
		return
	}

	c.Header(JobIDHeader, job.ID.String())
	c.Header("Content-Type", "video/mp4")
	c.FileAttachment(result.Path, result.Filename)

	h.service.Complete(context.WithoutCancel(ctx), job, result)
}

func (h *ExportHandler) parseForm(c *gin.Context) bool {
	err := c.Request.ParseMultipartForm(h.maxMem)
	if errors.Is(err, http.ErrNotMultipart) {
		err = c.Request.ParseForm()
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to parse multipart form",
			Message: err.Error(),
		})
		return false
	}
	return true
}

func (h *ExportHandler) exportError(c *gin.Context, err error) {
	var inputErr *export.InputError
	switch {
	case errors.As(err, &inputErr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: inputErr.Message})
	case errors.Is(err, archive.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid path", Message: err.Error()})
	case errors.Is(err, archive.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Input file not found", Message: err.Error()})
	case errors.Is(err, services.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "Server busy"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
	}
}

func formFiles(c *gin.Context) map[string][]*multipart.FileHeader {
	if c.Request.MultipartForm == nil {
		return nil
	}
	return c.Request.MultipartForm.File
}

// parseStoryRefs accepts a JSON array whose items are story objects or bare paths.
func parseStoryRefs(raw string) ([]models.StoryRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}

	refs := make([]models.StoryRef, 0, len(items))
	for _, item := range items {
		var path string
		if err := json.Unmarshal(item, &path); err == nil {
			refs = append(refs, models.StoryRef{Path: path})
			continue
		}
		var ref models.StoryRef
		if err := json.Unmarshal(item, &ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// collectOverlays indexes overlay_<n> uploads by n.
func collectOverlays(files map[string][]*multipart.FileHeader) map[int]export.Upload {
	overlays := make(map[int]export.Upload)
	for field, fhs := range files {
		if len(fhs) == 0 || !strings.HasPrefix(field, overlayFieldPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(field, overlayFieldPrefix))
		if err != nil || n < 0 {
			continue
		}
		overlays[n] = export.FromFileHeader(fhs[0])
	}
	return overlays
}
