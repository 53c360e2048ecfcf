package archive

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"story-archive-backend/internal/models"
)

var (
	dateDirPattern  = regexp.MustCompile(`^\d{8}$`)
	avatarPattern   = regexp.MustCompile(`(?i)^(.+)_avatar_\d{8}\.(jpg|jpeg|png)$`)
	storyExtPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|mp4)$`)
	snapshotExt     = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)
	resharedExt     = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|mp4)$`)
	timestampRe     = regexp.MustCompile(`(\d{8})_(\d{6})`)
	storyNumberRe   = regexp.MustCompile(`(?i)_(\d+)\.(jpg|jpeg|png|mp4)$`)

	// Evaluated in order; the first match wins.
	snapshotPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(.+)_profile_\d{8}_\d{6}$`),
		regexp.MustCompile(`^(.+)_profile_\d{8}$`),
		regexp.MustCompile(`^(.+)_\d{8}_\d{6}$`),
		regexp.MustCompile(`^(.+)_account_\d{8}$`),
		regexp.MustCompile(`^(.+)_capture_\d{8}$`),
		regexp.MustCompile(`^(.+)_screenshot_\d{8}$`),
		regexp.MustCompile(`^(.+)_\d{8}$`),
		regexp.MustCompile(`^(.+)_profile$`),
	}

	storyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(.+?)_\d{8}_\d{6}$`),
		regexp.MustCompile(`^(.+?)_[a-zA-Z0-9]+$`),
	}
)

const reshareMarker = "_reshare_"

// IsDateDir reports whether name is an 8-digit YYYYMMDD folder name.
func IsDateDir(name string) bool {
	return dateDirPattern.MatchString(name)
}

// ExtractUsernameFromSnapshot parses the account name out of a profile snapshot
// filename, falling back to the name without extension.
func ExtractUsernameFromSnapshot(filename string) string {
	return firstMatch(snapshotPatterns, trimExt(filename))
}

// ExtractUsernameFromStory parses the account name out of a story filename,
// falling back to the name without extension.
func ExtractUsernameFromStory(filename string) string {
	return firstMatch(storyPatterns, trimExt(filename))
}

// NormalizeUsername folds variants such as "_jane_", "jane." and "Jane" together.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.Trim(username, "._"))
}

// ExtractReshareInfo reads the "_reshare_<user>" convention. When account is set
// only that account's stories are considered reshares.
func ExtractReshareInfo(username, filename, account string) *models.ReshareInfo {
	if account != "" && username != account {
		return nil
	}

	idx := strings.LastIndex(filename, reshareMarker)
	if idx == -1 {
		return nil
	}

	rest := filename[idx+len(reshareMarker):]
	dot := strings.LastIndex(rest, ".")
	if dot == -1 {
		return nil
	}

	return &models.ReshareInfo{
		OriginalUser: rest[:dot],
		ReshareCount: strings.Count(filename, reshareMarker),
	}
}

// ExtractTimestamp finds a YYYYMMDD_HHMMSS stamp in filename, interpreted in local time.
func ExtractTimestamp(filename string) (time.Time, bool) {
	m := timestampRe.FindStringSubmatch(filename)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("20060102150405", m[1]+m[2], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// StoryNumber returns the trailing sequence number of names like "user_story_20250808_01.jpg".
func StoryNumber(filename string) int {
	m := storyNumberRe.FindStringSubmatch(filename)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// MediaType classifies a filename by extension.
func MediaType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mov", ".webm":
		return models.MediaTypeVideo
	default:
		return models.MediaTypeImage
	}
}

// IsImage reports whether filename has a still-image extension.
func IsImage(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

func trimExt(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func firstMatch(patterns []*regexp.Regexp, name string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(name); m != nil {
			return m[1]
		}
	}
	return name
}
