package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"story-archive-backend/internal/handlers"
)

func TestInvalidAction(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	for _, target := range []string{"/api.php", "/api.php?action=drop-tables", "/api?action="} {
		w := s.get(t, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.JSONEq(t, `{"error":"Invalid action"}`, w.Body.String(), target)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWrongMethod(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.get(t, "/api.php?action=process-video", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))

	w = s.post(t, "list-dates", newForm())
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET", w.Header().Get("Allow"))
}

func TestAPIAlias(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.get(t, "/api?action=list-dates", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["20250102","20250101"]`, w.Body.String())
}

func TestDebugAction(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.get(t, "/api.php?action=test-debug", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message"`)
	assert.Contains(t, w.Body.String(), `"timestamp"`)
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	req, _ := http.NewRequest(http.MethodOptions, "/api.php?action=process-video", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedActions(t *testing.T) {
	const secret = "test-secret-key-for-jwt-signing-must-be-long-enough"
	s := newTestServer(t, serverOptions{jwtSecret: secret})

	// Browsing stays public.
	w := s.get(t, "/api.php?action=list-dates", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.post(t, "process-video", newForm())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, s.runner.Calls())

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "viewer"}).SignedString([]byte(secret))
	require.NoError(t, err)

	body, contentType := newForm().encode(t)
	req, _ := http.NewRequest(http.MethodPost, "/api.php?action=process-video", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing required parameters")
}

type stubVersioner struct {
	version string
	err     error
}

func (v stubVersioner) Version(context.Context) (string, error) {
	return v.version, v.err
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, tc := range []struct {
		versioner handlers.Versioner
		want      string
	}{
		{nil, `"status":"ok"`},
		{stubVersioner{version: "ffmpeg version 7.1"}, `"ffmpeg":"ffmpeg version 7.1"`},
		{stubVersioner{err: errors.New("executable file not found")}, `"status":"degraded"`},
	} {
		router := gin.New()
		router.GET("/health", handlers.NewHealthHandler(tc.versioner).Health)

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), tc.want), w.Body.String())
	}
}

func TestRouterHealth(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	w := s.get(t, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
