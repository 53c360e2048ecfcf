// Package supabase publishes finished exports to Supabase Storage.
package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	storage "github.com/supabase-community/storage-go"
	"story-archive-backend/internal/logging"
)

const DefaultRetries = 3

// StorageClient uploads export files into one bucket.
type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
	retries int
	backoff []time.Duration
	logger  *slog.Logger

	// storage-go keeps per-upload headers on the shared client.
	mu sync.Mutex
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string, logger *slog.Logger) *StorageClient {
	baseURL := strings.TrimRight(supabaseURL, "/")
	return &StorageClient{
		client:  storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil),
		bucket:  bucket,
		baseURL: baseURL,
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		logger:  logging.NewComponentLogger(logger, "storage"),
	}
}

// WithBackoff overrides the retry delays.
func (s *StorageClient) WithBackoff(backoff ...time.Duration) *StorageClient {
	s.backoff = backoff
	return s
}

func (s *StorageClient) Bucket() string {
	return s.bucket
}

// UploadExport uploads the file at localPath to storagePath, retrying with
// backoff, and returns its public URL.
func (s *StorageClient) UploadExport(ctx context.Context, localPath, storagePath, contentType string) (string, error) {
	err := RetryWithBackoff(ctx, s.retries, s.backoff, func() error {
		return s.upload(localPath, storagePath, contentType)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	s.logger.Info("export uploaded", "bucket", s.bucket, "path", storagePath)
	return s.GetPublicURL(storagePath), nil
}

func (s *StorageClient) upload(localPath, storagePath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	upsert := true
	_, err = s.client.UploadFile(s.bucket, storagePath, f, storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		s.logger.Warn("upload attempt failed", "path", storagePath, "error", err)
	}
	return err
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storagePath)
}

// ExportPath is the object path of an export: exports/YYYY/MM/DD/<job id>/<filename>.
func ExportPath(jobID string, created time.Time, filename string) string {
	return fmt.Sprintf("exports/%s/%s/%s", created.UTC().Format("2006/01/02"), jobID, filename)
}
