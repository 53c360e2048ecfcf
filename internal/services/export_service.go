// Package services coordinates an export with its job record and publishing.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"story-archive-backend/internal/database"
	"story-archive-backend/internal/export"
	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/models"
	"story-archive-backend/internal/supabase"
)

var (
	ErrBusy           = errors.New("too many exports in progress")
	ErrJobLogDisabled = errors.New("export job log is disabled")
)

// Publisher stores a finished export somewhere durable and returns its URL.
type Publisher interface {
	UploadExport(ctx context.Context, localPath, storagePath, contentType string) (string, error)
}

type Option func(*ExportService) error

func WithJobStore(store database.JobStore) Option {
	return func(s *ExportService) error {
		s.jobs = store
		return nil
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *ExportService) error {
		s.publisher = p
		return nil
	}
}

// WithWorkers bounds concurrent exports to size; up to queue more requests wait
// for a free worker and the rest are refused with ErrBusy.
func WithWorkers(size, queue int) Option {
	return func(s *ExportService) error {
		if size <= 0 {
			return nil
		}
		// ants treats a zero blocking limit as unbounded.
		opt := ants.WithMaxBlockingTasks(queue)
		if queue <= 0 {
			opt = ants.WithNonblocking(true)
		}
		pool, err := ants.NewPool(size, opt)
		if err != nil {
			return fmt.Errorf("create export pool: %w", err)
		}
		s.pool = pool
		return nil
	}
}

// ExportService records and publishes exports. Every dependency is optional:
// without a job store nothing is recorded, without a publisher nothing is
// uploaded. Failures of either are logged and never fail the export itself.
type ExportService struct {
	jobs      database.JobStore
	publisher Publisher
	pool      *ants.Pool
	logger    *slog.Logger
}

func NewExportService(logger *slog.Logger, opts ...Option) (*ExportService, error) {
	s := &ExportService{logger: logging.NewComponentLogger(logger, "export-service")}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run executes fn on the export worker pool and waits for it.
func (s *ExportService) Run(ctx context.Context, fn func(context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}

	done := make(chan error, 1)
	err := s.pool.Submit(func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn(ctx)
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		return ErrBusy
	}
	if err != nil {
		return fmt.Errorf("submit export: %w", err)
	}
	return <-done
}

// Begin records a running job. The returned job is never nil.
func (s *ExportService) Begin(ctx context.Context, kind, outputFilename string, inputCount int) *models.ExportJob {
	job := &models.ExportJob{
		ID:             uuid.New(),
		Kind:           kind,
		Status:         models.ExportStatusRunning,
		OutputFilename: outputFilename,
		InputCount:     inputCount,
		CreatedAt:      time.Now().UTC(),
	}

	if s.jobs != nil {
		if err := s.jobs.Create(ctx, job); err != nil {
			s.logger.Warn("export job not recorded", "job_id", job.ID, "error", err)
		}
	}
	s.logger.Info("export started", "job_id", job.ID, "kind", kind, "inputs", inputCount)
	return job
}

// Complete publishes the result when a publisher is configured and marks the job completed.
func (s *ExportService) Complete(ctx context.Context, job *models.ExportJob, result *export.Result) {
	job.OutputFilename = result.Filename
	job.SegmentCount = result.Segments
	job.OutputSize = result.Size

	if s.publisher != nil {
		storagePath := supabase.ExportPath(job.ID.String(), job.CreatedAt, result.Filename)
		url, err := s.publisher.UploadExport(ctx, result.Path, storagePath, "video/mp4")
		if err != nil {
			s.logger.Error("export not published", "job_id", job.ID, "error", err)
		} else {
			job.StoragePath = storagePath
			job.StorageURL = url
		}
	}

	if s.jobs != nil {
		if err := s.jobs.Complete(ctx, job); err != nil {
			s.logger.Warn("export job not updated", "job_id", job.ID, "error", err)
		}
	}
	s.logger.Info("export completed",
		"job_id", job.ID,
		"kind", job.Kind,
		"segments", job.SegmentCount,
		"size", job.OutputSize,
		"duration", time.Since(job.CreatedAt),
	)
}

func (s *ExportService) Fail(ctx context.Context, job *models.ExportJob, cause error) {
	job.Error = cause.Error()
	if s.jobs != nil {
		if err := s.jobs.Fail(ctx, job); err != nil {
			s.logger.Warn("export job not updated", "job_id", job.ID, "error", err)
		}
	}

	level := slog.LevelError
	if export.IsInputError(cause) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "export failed", "job_id", job.ID, "kind", job.Kind, "error", cause)
}

func (s *ExportService) ListJobs(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if s.jobs == nil {
		return nil, ErrJobLogDisabled
	}
	return s.jobs.List(ctx, limit)
}

func (s *ExportService) GetJob(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	if s.jobs == nil {
		return nil, ErrJobLogDisabled
	}
	return s.jobs.Get(ctx, id)
}

// Close waits up to timeout for running exports to finish.
func (s *ExportService) Close(timeout time.Duration) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.ReleaseTimeout(timeout)
}
