package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"story-archive-backend/internal/logging"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	Removed []string
	Bytes   int64
	Failed  int
}

// Sweeper deletes workspaces abandoned by crashed or killed processes.
type Sweeper struct {
	base      string
	maxAge    time.Duration
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

func NewSweeper(base string, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if base == "" {
		base = os.TempDir()
	}
	return &Sweeper{
		base:   base,
		maxAge: maxAge,
		logger: logging.NewComponentLogger(logger, "sweeper"),
	}
}

// Sweep removes every workspace under the base directory last modified before now-maxAge.
func (s *Sweeper) Sweep(now time.Time) (SweepResult, error) {
	var result SweepResult

	entries, err := os.ReadDir(s.base)
	if err != nil {
		return result, fmt.Errorf("read %s: %w", s.base, err)
	}

	cutoff := now.Add(-s.maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), WorkspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		dir := filepath.Join(s.base, entry.Name())
		size := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("stale workspace not removed", "dir", dir, "error", err)
			result.Failed++
			continue
		}
		result.Removed = append(result.Removed, entry.Name())
		result.Bytes += size
	}

	if len(result.Removed) > 0 {
		s.logger.Info("stale workspaces removed", "count", len(result.Removed), "bytes", result.Bytes)
	}
	return result, nil
}

// Start runs Sweep every interval until Stop is called.
func (s *Sweeper) Start(interval time.Duration) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(time.Now()); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.logger.Info("sweeper started", "interval", interval, "max_age", s.maxAge, "dir", s.base)
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	s.scheduler = nil
	return nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
