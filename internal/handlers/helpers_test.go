package handlers_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/export"
	"story-archive-backend/internal/ffmpeg"
	"story-archive-backend/internal/handlers"
	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/services"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	if f.fail != "" && strings.Contains(strings.Join(args, " "), f.fail) {
		return nil, &ffmpeg.ExitError{Code: 1, Output: "Invalid data found when processing input"}
	}
	return nil, os.WriteFile(args[len(args)-1], []byte("encoded"), 0o600)
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testServer struct {
	router  *gin.Engine
	runner  *fakeRunner
	root    string
	tempDir string
}

type serverOptions struct {
	jwtSecret string
	service   *services.ExportService
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	autoExport := t.TempDir()
	tempDir := t.TempDir()

	write := func(base, rel string, data []byte) {
		full := filepath.Join(base, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, data, 0o644))
	}
	write(root, "20250101/alice/alice_story_20250101_01.mp4", []byte("0123456789"))
	write(root, "20250101/alice/alice_story_20250101_02.png", pngHeader)
	write(root, "20250101/bob/bob_20250101_120000.jpg", []byte("jpeg"))
	write(root, "20250102/carol/carol_1.mp4", []byte("mp4"))
	write(root, "Avatars/alice_avatar_20250101.jpg", []byte("jpeg"))
	write(autoExport, "20250101/AccountCaptures/alice_profile_20250101.png", pngHeader)
	write(autoExport, "20250101/AllResharedUserStories/dave/dave_1.mp4", []byte("mp4"))

	logger := logging.Discard()
	scanner := archive.NewScanner(root, autoExport, archive.Options{}, logger)
	runner := &fakeRunner{}
	pipeline := export.NewPipeline(runner, scanner, ffmpeg.DefaultOptions(), logger)

	service := opts.service
	if service == nil {
		var err error
		service, err = services.NewExportService(logger)
		require.NoError(t, err)
	}

	d := handlers.NewDispatcher(
		handlers.NewArchiveHandler(scanner),
		handlers.NewExportHandler(pipeline, service, tempDir, 32, logger),
		handlers.NewJobsHandler(service),
		opts.jwtSecret,
	)
	return &testServer{
		router:  handlers.NewRouter(d, handlers.NewHealthHandler(nil), logger),
		runner:  runner,
		root:    root,
		tempDir: tempDir,
	}
}

func (s *testServer) get(t *testing.T, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) post(t *testing.T, action string, form *multipartForm) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := form.encode(t)
	req, err := http.NewRequest(http.MethodPost, "/api.php?action="+action, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// assertWorkspacesRemoved checks that no export left files behind.
func (s *testServer) assertWorkspacesRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(s.tempDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

type multipartForm struct {
	fields map[string]string
	files  map[string][]byte
}

func newForm() *multipartForm {
	return &multipartForm{fields: map[string]string{}, files: map[string][]byte{}}
}

func (f *multipartForm) field(name, value string) *multipartForm {
	f.fields[name] = value
	return f
}

func (f *multipartForm) file(name string, data []byte) *multipartForm {
	f.files[name] = data
	return f
}

func (f *multipartForm) encode(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, value := range f.fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	for name, data := range f.files {
		part, err := mw.CreateFormFile(name, name+".bin")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}
