package supabase_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/supabase"
)

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output.mp4")
	require.NoError(t, os.WriteFile(path, []byte("mp4-bytes"), 0o600))
	return path
}

func TestStorageClient_UploadExport(t *testing.T) {
	var attempts atomic.Int32
	var gotPath, gotAuth, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"statusCode":"500","error":"internal","message":"try again"}`))
			return
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"Key":"story-exports/exports/reel.mp4"}`))
	}))
	defer server.Close()

	client := supabase.NewStorageClient(server.URL+"/", "service-key", "story-exports", logging.Discard()).
		WithBackoff(time.Millisecond)

	url, err := client.UploadExport(context.Background(), writeExport(t), "exports/reel.mp4", "video/mp4")
	require.NoError(t, err)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, "/storage/v1/object/story-exports/exports/reel.mp4", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "mp4-bytes", gotBody)
	assert.Equal(t, server.URL+"/storage/v1/object/public/story-exports/exports/reel.mp4", url)
}

func TestStorageClient_UploadExportGivesUp(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := supabase.NewStorageClient(server.URL, "key", "story-exports", logging.Discard()).
		WithBackoff(time.Millisecond)

	_, err := client.UploadExport(context.Background(), writeExport(t), "exports/reel.mp4", "video/mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.Equal(t, int32(supabase.DefaultRetries), attempts.Load())
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := supabase.RetryWithBackoff(context.Background(), 3, []time.Duration{time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := supabase.RetryWithBackoff(ctx, 3, []time.Duration{time.Hour}, func() error {
		return errors.New("down")
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExportPath(t *testing.T) {
	created := time.Date(2025, 8, 8, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "exports/2025/08/08/abc/reel.mp4", supabase.ExportPath("abc", created, "reel.mp4"))
}
