package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"story-archive-backend/internal/models"
)

const (
	jobsTable = "export_jobs"
	// Fixed width so text timestamps sort chronologically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var jobColumns = []string{
	"id", "kind", "status", "output_filename", "input_count", "segment_count",
	"output_size", "storage_path", "storage_url", "error_message", "created_at", "finished_at",
}

//go:generate go run go.uber.org/mock/mockgen -source=jobs.go -destination=mocks/mock.go
type JobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	Complete(ctx context.Context, job *models.ExportJob) error
	Fail(ctx context.Context, job *models.ExportJob) error
	List(ctx context.Context, limit int) ([]models.ExportJob, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ExportJob, error)
}

// SQLStore is the database/sql JobStore. Timestamps are written as RFC 3339
// text so both dialects round-trip them the same way.
type SQLStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ JobStore = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, sb: builder(dialect)}
}

// Create inserts job as running, assigning an ID and creation time when unset.
func (s *SQLStore) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = models.ExportStatusRunning

	query, args, err := s.sb.
		Insert(jobsTable).
		Columns("id", "kind", "status", "output_filename", "input_count", "created_at").
		Values(job.ID.String(), job.Kind, job.Status, job.OutputFilename, job.InputCount, formatTime(job.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadQuery, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create export job: %w", err)
	}
	return nil
}

func (s *SQLStore) Complete(ctx context.Context, job *models.ExportJob) error {
	job.Status = models.ExportStatusCompleted
	return s.finish(ctx, job, sq.Eq{
		"segment_count": job.SegmentCount,
		"output_size":   job.OutputSize,
		"storage_path":  job.StoragePath,
		"storage_url":   job.StorageURL,
	})
}

func (s *SQLStore) Fail(ctx context.Context, job *models.ExportJob) error {
	job.Status = models.ExportStatusFailed
	return s.finish(ctx, job, sq.Eq{"error_message": job.Error})
}

func (s *SQLStore) finish(ctx context.Context, job *models.ExportJob, fields sq.Eq) error {
	if job.FinishedAt == nil {
		now := time.Now().UTC()
		job.FinishedAt = &now
	}

	query, args, err := s.sb.Update(jobsTable).
		Set("status", job.Status).
		Set("finished_at", formatTime(*job.FinishedAt)).
		SetMap(fields).
		Where(sq.Eq{"id": job.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadQuery, err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update export job: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the most recent jobs first.
func (s *SQLStore) List(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := s.sb.
		Select(jobColumns...).
		From(jobsTable).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.ExportJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	query, args, err := s.sb.
		Select(jobColumns...).
		From(jobsTable).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ExportJob, error) {
	var (
		job        models.ExportJob
		id         string
		createdAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(
		&id, &job.Kind, &job.Status, &job.OutputFilename, &job.InputCount, &job.SegmentCount,
		&job.OutputSize, &job.StoragePath, &job.StorageURL, &job.Error, &createdAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		job.FinishedAt = &t
	}
	return &job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
