package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/models"
)

const fileCacheControl = "public, max-age=3600"

type ArchiveHandler struct {
	scanner *archive.Scanner
}

func NewArchiveHandler(scanner *archive.Scanner) *ArchiveHandler {
	return &ArchiveHandler{scanner: scanner}
}

// ListDates godoc
// @Summary     List archive dates
// @Description Returns the YYYYMMDD folders of the archive, newest first
// @Tags        archive
// @Produce     json
// @Success     200 {array} string
// @Router      /api.php?action=list-dates [get]
func (h *ArchiveHandler) ListDates(c *gin.Context) {
	c.JSON(http.StatusOK, h.scanner.ListDates())
}

// ListStories godoc
// @Summary     List stories of one date
// @Description Returns every story of the date folder. Unknown or malformed dates yield an empty list.
// @Tags        archive
// @Produce     json
// @Param       date  query string true  "Date folder (YYYYMMDD)"
// @Param       group query string false "Set to user to group by username"
// @Success     200 {array} models.Story
// @Router      /api.php?action=list-stories [get]
func (h *ArchiveHandler) ListStories(c *gin.Context) {
	stories := h.scanner.ListStories(c.Query("date"))
	if c.Query("group") == "user" {
		c.JSON(http.StatusOK, archive.GroupByUser(stories))
		return
	}
	c.JSON(http.StatusOK, stories)
}

// ListAvatars godoc
// @Summary     List avatars
// @Tags        archive
// @Produce     json
// @Success     200 {array} models.Avatar
// @Router      /api.php?action=list-avatars [get]
func (h *ArchiveHandler) ListAvatars(c *gin.Context) {
	c.JSON(http.StatusOK, h.scanner.ListAvatars())
}

// ListProfileSnapshots godoc
// @Summary     List profile snapshots
// @Description Returns account captures from every auto-export date
// @Tags        archive
// @Produce     json
// @Param       group query string false "Set to user to group by username"
// @Success     200 {array} models.ProfileSnapshot
// @Router      /api.php?action=list-profile-snapshots [get]
func (h *ArchiveHandler) ListProfileSnapshots(c *gin.Context) {
	snapshots := h.scanner.ListProfileSnapshots()
	if c.Query("group") == "user" {
		c.JSON(http.StatusOK, archive.GroupSnapshotsByUser(snapshots))
		return
	}
	c.JSON(http.StatusOK, snapshots)
}

// ListResharedUsersStories godoc
// @Summary     List reshared users' stories
// @Tags        archive
// @Produce     json
// @Param       group query string false "Set to date to group by date folder"
// @Success     200 {array} models.Story
// @Router      /api.php?action=list-reshared-users-stories [get]
func (h *ArchiveHandler) ListResharedUsersStories(c *gin.Context) {
	stories := h.scanner.ListResharedUsersStories()
	if c.Query("group") == "date" {
		c.JSON(http.StatusOK, archive.GroupByDate(stories))
		return
	}
	c.JSON(http.StatusOK, stories)
}

// GetFile godoc
// @Summary     Stream an archived file
// @Description Serves an archive or AutoExport file with its detected content type.
// @Description Supports single byte ranges (206 Partial Content, 416 when unsatisfiable).
// @Tags        archive
// @Produce     octet-stream
// @Param       path  query  string true  "Archive path, AutoExport/ prefixed for auto-export files"
// @Param       Range header string false "bytes=start-end"
// @Success     200
// @Success     206
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     416
// @Router      /api.php?action=get-file [get]
func (h *ArchiveHandler) GetFile(c *gin.Context) {
	rel := c.Query("path")
	full, err := h.scanner.Resolve(rel)
	if err != nil {
		h.resolveError(c, err)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "File not found", Message: rel})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read file", Message: err.Error()})
		return
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectReader(f); err == nil {
		contentType = mtype.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read file", Message: err.Error()})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", fileCacheControl)
	header.Set("Accept-Ranges", "bytes")
	http.ServeContent(c.Writer, c.Request, filepath.Base(full), info.ModTime(), f)
}

func (h *ArchiveHandler) resolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, archive.ErrInvalidPath):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid path", Message: err.Error()})
	case errors.Is(err, archive.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "File not found", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read file", Message: err.Error()})
	}
}
