package models

// ConcatenateRequest holds the non-file fields of a concatenate-videos upload.
type ConcatenateRequest struct {
	VideoCount     int    `form:"video_count"`
	OutputFilename string `form:"output_filename"`
}

// VisualExperienceRequest holds the non-file fields of the visual experience exports.
type VisualExperienceRequest struct {
	StoryPaths     string `form:"story_paths"`
	StorySegments  string `form:"story_segments"`
	OutputFilename string `form:"output_filename"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
