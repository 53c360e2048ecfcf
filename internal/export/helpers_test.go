package export_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/ffmpeg"
	"story-archive-backend/internal/logging"
)

// fakeRunner writes a dummy file to the last argument instead of running ffmpeg.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  func(args []string) bool
	empty bool
}

func (f *fakeRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if f.fail != nil && f.fail(args) {
		return []byte("conversion failed"), &ffmpeg.ExitError{Code: 1, Output: "conversion failed"}
	}
	content := []byte("encoded")
	if f.empty {
		content = nil
	}
	if err := os.WriteFile(args[len(args)-1], content, 0o600); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failWhen(substr string) func([]string) bool {
	return func(args []string) bool {
		return strings.Contains(strings.Join(args, " "), substr)
	}
}

func newArchive(t *testing.T, files ...string) *archive.Scanner {
	t.Helper()
	root := t.TempDir()
	for _, rel := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("media"), 0o644))
	}
	return archive.NewScanner(root, "", archive.Options{}, logging.Discard())
}

func hasArg(args []string, target string) bool {
	for _, arg := range args {
		if arg == target {
			return true
		}
	}
	return false
}

func isNotExist(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}
