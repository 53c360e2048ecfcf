package models

import "time"

type HealthResponse struct {
	Status string `json:"status"`
	FFmpeg string `json:"ffmpeg,omitempty"`
	Error  string `json:"error,omitempty"`
}

type DebugResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ExportJobResponse struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	OutputFilename string     `json:"output_filename"`
	InputCount     int        `json:"input_count"`
	SegmentCount   int        `json:"segment_count"`
	OutputSize     int64      `json:"output_size"`
	StorageURL     string     `json:"storage_url,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

type ExportJobsResponse struct {
	Jobs []ExportJobResponse `json:"jobs"`
}

// NewExportJobResponse converts a stored job to its API shape.
func NewExportJobResponse(job ExportJob) ExportJobResponse {
	return ExportJobResponse{
		ID:             job.ID.String(),
		Kind:           job.Kind,
		Status:         job.Status,
		OutputFilename: job.OutputFilename,
		InputCount:     job.InputCount,
		SegmentCount:   job.SegmentCount,
		OutputSize:     job.OutputSize,
		StorageURL:     job.StorageURL,
		Error:          job.Error,
		CreatedAt:      job.CreatedAt,
		FinishedAt:     job.FinishedAt,
	}
}
