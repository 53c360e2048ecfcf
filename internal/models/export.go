package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ExportKindOverlay           = "process-video"
	ExportKindConcatenate       = "concatenate-videos"
	ExportKindVisual            = "export-visual-experience"
	ExportKindVisualWithOverlay = "export-visual-experience-with-overlays"

	ExportStatusRunning   = "running"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// ExportJob is the audit record of a single export request.
type ExportJob struct {
	ID             uuid.UUID
	Kind           string
	Status         string
	OutputFilename string
	InputCount     int
	SegmentCount   int
	OutputSize     int64
	StoragePath    string
	StorageURL     string
	Error          string
	CreatedAt      time.Time
	FinishedAt     *time.Time
}

// StoryRef identifies an archived story to include in a visual experience export.
type StoryRef struct {
	Path     string `json:"path"`
	Username string `json:"username,omitempty"`
	Type     string `json:"type,omitempty"`
}

// StorySegment is one entry of story_segments for overlay exports.
type StorySegment struct {
	Path         string `json:"path"`
	Username     string `json:"username,omitempty"`
	Type         string `json:"type,omitempty"`
	OverlayIndex *int   `json:"overlayIndex,omitempty"`
}
