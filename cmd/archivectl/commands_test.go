package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"story-archive-backend/internal/database"
	"story-archive-backend/internal/export"
	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/models"
)

func setupArchive(t *testing.T) (root, tempDir string) {
	t.Helper()
	root = t.TempDir()
	autoExport := t.TempDir()
	tempDir = t.TempDir()

	files := []string{
		filepath.Join(root, "20250101", "alice", "alice_20250101_101500_01.mp4"),
		filepath.Join(root, "20250101", "alice", "alice_20250101_101600_reshare_bob.jpg"),
		filepath.Join(root, "20250102", "carol", "carol_1.png"),
		filepath.Join(root, "Avatars", "alice_avatar_20250101.jpg"),
		filepath.Join(autoExport, "20250101", "AccountCaptures", "dave_profile_20250101.png"),
		filepath.Join(autoExport, "20250101", "AllResharedUserStories", "bob", "bob_1.mp4"),
		filepath.Join(autoExport, "20250101", "AllResharedUserStories", "bob", "bob_2.jpg"),
	}
	for _, path := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
	}

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ARCHIVE_PATH", root)
	t.Setenv("AUTO_EXPORT_PATH", autoExport)
	t.Setenv("TEMP_DIR", tempDir)
	t.Setenv("JOBS_DB_PATH", filepath.Join(t.TempDir(), "jobs.db"))
	t.Setenv("LOG_LEVEL", "error")
	return root, tempDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDatesCommand(t *testing.T) {
	setupArchive(t)

	out, err := execute(t, "dates")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "20250102"), strings.Index(out, "20250101"))

	out, err = execute(t, "dates", "--json")
	require.NoError(t, err)
	var dates []string
	require.NoError(t, json.Unmarshal([]byte(out), &dates))
	assert.Equal(t, []string{"20250102", "20250101"}, dates)
}

func TestStoriesCommand(t *testing.T) {
	setupArchive(t)

	out, err := execute(t, "stories", "20250101")
	require.NoError(t, err)
	assert.Contains(t, out, "alice_20250101_101500_01.mp4")
	assert.Contains(t, out, "bob (x1)")

	out, err = execute(t, "stories", "20250101", "--user", "nobody", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = execute(t, "stories")
	assert.Error(t, err)
}

func TestListingCommands(t *testing.T) {
	setupArchive(t)

	out, err := execute(t, "avatars")
	require.NoError(t, err)
	assert.Contains(t, out, "Avatars/alice_avatar_20250101.jpg")

	out, err = execute(t, "snapshots")
	require.NoError(t, err)
	assert.Contains(t, out, "dave")

	out, err = execute(t, "reshared")
	require.NoError(t, err)
	assert.Contains(t, out, "bob")
}

func TestJobsCommand(t *testing.T) {
	setupArchive(t)
	ctx := context.Background()

	db, dialect, err := database.Open(ctx, "", os.Getenv("JOBS_DB_PATH"))
	require.NoError(t, err)
	require.NoError(t, database.NewMigrator(db, dialect, logging.Discard()).Run(ctx))
	store := database.NewSQLStore(db, dialect)
	job := &models.ExportJob{Kind: models.ExportKindConcatenate, OutputFilename: "joined.mp4", InputCount: 2}
	require.NoError(t, store.Create(ctx, job))
	job.OutputSize = 4096
	job.SegmentCount = 2
	require.NoError(t, store.Complete(ctx, job))
	require.NoError(t, db.Close())

	out, err := execute(t, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, job.ID.String()[:8])
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "4.1 kB")

	t.Setenv("JOBS_DB_PATH", "")
	_, err = execute(t, "jobs")
	assert.ErrorContains(t, err, "disabled")
}

func TestSweepCommand(t *testing.T) {
	_, tempDir := setupArchive(t)

	stale := filepath.Join(tempDir, export.WorkspacePrefix+"stale")
	fresh := filepath.Join(tempDir, export.WorkspacePrefix+"fresh")
	for _, dir := range []string{stale, fresh} {
		require.NoError(t, os.MkdirAll(dir, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "output.mp4"), []byte("1234"), 0o600))
	}
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	out, err := execute(t, "sweep", "--max-age", "2h")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 workspace(s)")

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
