// Package handlers exposes the archive over HTTP. Every operation is reached
// through a single endpoint selected by the "action" query parameter.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"story-archive-backend/internal/middleware"
	"story-archive-backend/internal/models"
)

const debugTimeLayout = "2006-01-02 15:04:05"

type route struct {
	method    string
	handler   gin.HandlerFunc
	protected bool
}

// Dispatcher routes /api.php?action=<name> requests to their handler.
type Dispatcher struct {
	routes    map[string]route
	jwtSecret string
	now       func() time.Time
}

// NewDispatcher builds the action table. Export and job actions require a
// bearer token when jwtSecret is set.
func NewDispatcher(archive *ArchiveHandler, exports *ExportHandler, jobs *JobsHandler, jwtSecret string) *Dispatcher {
	d := &Dispatcher{
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
	d.routes = map[string]route{
		"list-dates":                  {method: http.MethodGet, handler: archive.ListDates},
		"list-stories":                {method: http.MethodGet, handler: archive.ListStories},
		"list-avatars":                {method: http.MethodGet, handler: archive.ListAvatars},
		"list-profile-snapshots":      {method: http.MethodGet, handler: archive.ListProfileSnapshots},
		"list-reshared-users-stories": {method: http.MethodGet, handler: archive.ListResharedUsersStories},
		"get-file":                    {method: http.MethodGet, handler: archive.GetFile},
		"test-debug":                  {method: http.MethodGet, handler: d.debug},

		"process-video":                          {method: http.MethodPost, handler: exports.ProcessVideo, protected: true},
		"concatenate-videos":                     {method: http.MethodPost, handler: exports.ConcatenateVideos, protected: true},
		"export-visual-experience":               {method: http.MethodPost, handler: exports.ExportVisualExperience, protected: true},
		"export-visual-experience-with-overlays": {method: http.MethodPost, handler: exports.ExportVisualExperienceWithOverlays, protected: true},

		"list-export-jobs": {method: http.MethodGet, handler: jobs.ListJobs, protected: true},
		"get-export-job":   {method: http.MethodGet, handler: jobs.GetJob, protected: true},
	}
	return d
}

// Register mounts the dispatcher on /api.php and /api.
func (d *Dispatcher) Register(r gin.IRoutes) {
	for _, p := range []string{"/api.php", "/api"} {
		r.GET(p, d.Handle)
		r.HEAD(p, d.Handle)
		r.POST(p, d.Handle)
	}
}

func (d *Dispatcher) Handle(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")

	rt, ok := d.routes[c.Query("action")]
	if !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid action"})
		return
	}

	method := c.Request.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	if method != rt.method {
		c.Header("Allow", rt.method)
		c.JSON(http.StatusMethodNotAllowed, models.ErrorResponse{
			Error:   "Method not allowed",
			Message: c.Query("action") + " requires " + rt.method,
		})
		return
	}

	if rt.protected && !middleware.Authorize(c, d.jwtSecret) {
		return
	}
	rt.handler(c)
}

func (d *Dispatcher) debug(c *gin.Context) {
	c.JSON(http.StatusOK, models.DebugResponse{
		Message:   "API is up",
		Timestamp: d.now().Format(debugTimeLayout),
	})
}
