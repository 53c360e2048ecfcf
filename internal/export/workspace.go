// Package export runs the server-side video exports: every request owns a
// Workspace holding its uploads, intermediate segments and final output, and
// the Workspace is removed when the request finishes.
package export

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"story-archive-backend/internal/logging"
)

const WorkspacePrefix = "story-export-"

// Workspace is a per-request temp directory.
type Workspace struct {
	dir    string
	logger *slog.Logger
}

// NewWorkspace creates story-export-<uuid> under base (os.TempDir when empty).
func NewWorkspace(base string, logger *slog.Logger) (*Workspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, WorkspacePrefix+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "workspace").With("workspace", filepath.Base(dir)),
	}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// File returns the workspace path for name. Directory parts of name are dropped.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Save copies src into the workspace as name and returns the full path.
func (w *Workspace) Save(name string, src io.Reader) (string, error) {
	path := w.File(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path, nil
}

// SaveUpload stores an uploaded file as name.
func (w *Workspace) SaveUpload(name string, up Upload) (string, error) {
	if up.Open == nil {
		return "", fmt.Errorf("save %s: upload %q has no content", name, up.Name)
	}
	src, err := up.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %q: %w", up.Name, err)
	}
	defer src.Close()
	return w.Save(name, src)
}

// Cleanup removes the workspace and everything in it. Safe to call twice.
func (w *Workspace) Cleanup() error {
	err := os.RemoveAll(w.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("workspace cleanup failed", "error", err)
		return fmt.Errorf("remove workspace: %w", err)
	}
	w.logger.Debug("workspace removed")
	return nil
}

// nonEmpty returns the size of path, or ErrEmptyOutput when it is missing or empty.
func nonEmpty(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return 0, ErrEmptyOutput
	}
	return info.Size(), nil
}
