package models

import "time"

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Story is one archived image or video attributed to a date folder and a user.
type Story struct {
	Username    string       `json:"username"`
	Filename    string       `json:"filename"`
	Path        string       `json:"path"`
	Type        string       `json:"type"`
	Date        string       `json:"date"`
	Reshare     *ReshareInfo `json:"reshare,omitempty"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	StoryNumber int          `json:"storyNumber,omitempty"`
}

// ReshareInfo describes a story rebroadcast from another account.
type ReshareInfo struct {
	OriginalUser string `json:"originalUser"`
	ReshareCount int    `json:"reshareCount"`
}

type Avatar struct {
	Username string `json:"username"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// ProfileSnapshot is an account capture image stored under AutoExport/<date>/AccountCaptures.
type ProfileSnapshot struct {
	Username string `json:"username"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Date     string `json:"date"`
}
