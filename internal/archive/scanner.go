// Package archive scans the on-disk story archive.
//
// Two roots are involved. The archive root holds one folder per day
// (YYYYMMDD/<username>/<file>) plus a flat Avatars/ folder. The auto-export
// root holds YYYYMMDD/AccountCaptures/ profile snapshots and
// YYYYMMDD/AllResharedUserStories/<username>/ collections; API paths into it
// carry an "AutoExport/" prefix.
//
// Missing or unreadable directories are treated as empty: every List method
// returns a non-nil, possibly empty slice and never an error.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/models"
)

const (
	AvatarsDir         = "Avatars"
	AccountCapturesDir = "AccountCaptures"
	ResharedStoriesDir = "AllResharedUserStories"
	AutoExportPrefix   = "AutoExport/"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidPath = errors.New("invalid path")
)

// Options tunes filename interpretation.
type Options struct {
	// ReshareAccount limits reshare annotation to one account; empty means all.
	ReshareAccount string
	// ExcludedUsers are skipped from profile snapshots (case-insensitive exact match).
	ExcludedUsers []string
	// ExcludedSubstrings are skipped from profile snapshots when contained in the username.
	ExcludedSubstrings []string
}

type Scanner struct {
	root           string
	autoExportRoot string
	opts           Options
	logger         *slog.Logger
}

func NewScanner(root, autoExportRoot string, opts Options, logger *slog.Logger) *Scanner {
	return &Scanner{
		root:           root,
		autoExportRoot: autoExportRoot,
		opts:           opts,
		logger:         logging.NewComponentLogger(logger, "scanner"),
	}
}

// ListDates returns the YYYYMMDD folders of the archive root, newest first.
func (s *Scanner) ListDates() []string {
	dates := make([]string, 0)
	for _, entry := range s.readDir(s.root) {
		if entry.IsDir() && IsDateDir(entry.Name()) {
			dates = append(dates, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// ListStories returns every story of one date folder.
func (s *Scanner) ListStories(date string) []models.Story {
	stories := make([]models.Story, 0)
	if !IsDateDir(date) {
		return stories
	}

	dateDir := filepath.Join(s.root, date)
	for _, entry := range s.readDir(dateDir) {
		name := entry.Name()
		if !entry.IsDir() {
			// Loose files directly inside the date folder.
			if storyExtPattern.MatchString(name) {
				stories = append(stories, s.newStory(ExtractUsernameFromStory(name), name, path.Join(date, name), date))
			}
			continue
		}
		if name == AccountCapturesDir {
			continue
		}

		userStories := make([]models.Story, 0)
		for _, file := range s.readDir(filepath.Join(dateDir, name)) {
			if file.IsDir() || !storyExtPattern.MatchString(file.Name()) {
				continue
			}
			userStories = append(userStories, s.newStory(name, file.Name(), path.Join(date, name, file.Name()), date))
		}
		sortByStoryNumber(userStories)
		stories = append(stories, userStories...)
	}
	return stories
}

// ListAvatars returns the avatar images named <username>_avatar_YYYYMMDD.<ext>.
func (s *Scanner) ListAvatars() []models.Avatar {
	avatars := make([]models.Avatar, 0)
	for _, entry := range s.readDir(filepath.Join(s.root, AvatarsDir)) {
		if entry.IsDir() {
			continue
		}
		m := avatarPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		avatars = append(avatars, models.Avatar{
			Username: m[1],
			Filename: entry.Name(),
			Path:     path.Join(AvatarsDir, entry.Name()),
		})
	}
	return avatars
}

// ListProfileSnapshots returns account captures across all auto-export dates.
func (s *Scanner) ListProfileSnapshots() []models.ProfileSnapshot {
	snapshots := make([]models.ProfileSnapshot, 0)
	for _, date := range s.autoExportDates() {
		for _, entry := range s.readDir(filepath.Join(s.autoExportRoot, date, AccountCapturesDir)) {
			name := entry.Name()
			if entry.IsDir() || !snapshotExt.MatchString(name) {
				continue
			}
			username := ExtractUsernameFromSnapshot(name)
			if username == "" || s.excluded(username) {
				continue
			}
			snapshots = append(snapshots, models.ProfileSnapshot{
				Username: NormalizeUsername(username),
				Filename: name,
				Path:     AutoExportPrefix + path.Join(date, AccountCapturesDir, name),
				Date:     date,
			})
		}
	}
	return snapshots
}

// ListResharedUsersStories returns the stories of accounts that were reshared,
// attributed to the directory they are filed under.
func (s *Scanner) ListResharedUsersStories() []models.Story {
	stories := make([]models.Story, 0)
	for _, date := range s.autoExportDates() {
		base := filepath.Join(s.autoExportRoot, date, ResharedStoriesDir)
		for _, userDir := range s.readDir(base) {
			if !userDir.IsDir() {
				continue
			}
			user := userDir.Name()
			for _, file := range s.readDir(filepath.Join(base, user)) {
				name := file.Name()
				if file.IsDir() || !resharedExt.MatchString(name) {
					continue
				}
				stories = append(stories, models.Story{
					Username: user,
					Filename: name,
					Path:     AutoExportPrefix + path.Join(date, ResharedStoriesDir, user, name),
					Type:     MediaType(name),
					Date:     date,
				})
			}
		}
	}
	return stories
}

// Resolve maps an API path to a file on disk. Paths under AutoExport/ resolve
// against the auto-export root, everything else against the archive root.
func (s *Scanner) Resolve(rel string) (string, error) {
	root, inner := s.root, rel
	if strings.HasPrefix(rel, AutoExportPrefix) {
		if s.autoExportRoot == "" {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		root, inner = s.autoExportRoot, strings.TrimPrefix(rel, AutoExportPrefix)
	}

	if inner == "" || strings.Contains(inner, "\x00") || path.IsAbs(inner) || filepath.IsAbs(inner) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	cleaned := path.Clean(strings.ReplaceAll(inner, `\`, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}

	full := filepath.Join(root, filepath.FromSlash(cleaned))
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotFound, rel)
	}
	return full, nil
}

func (s *Scanner) newStory(username, filename, rel, date string) models.Story {
	story := models.Story{
		Username:    username,
		Filename:    filename,
		Path:        rel,
		Type:        MediaType(filename),
		Date:        date,
		Reshare:     ExtractReshareInfo(username, filename, s.opts.ReshareAccount),
		StoryNumber: StoryNumber(filename),
	}
	if ts, ok := ExtractTimestamp(filename); ok {
		story.Timestamp = &ts
	}
	return story
}

func (s *Scanner) autoExportDates() []string {
	dates := make([]string, 0)
	if s.autoExportRoot == "" {
		return dates
	}
	for _, entry := range s.readDir(s.autoExportRoot) {
		if entry.IsDir() && IsDateDir(entry.Name()) {
			dates = append(dates, entry.Name())
		}
	}
	return dates
}

func (s *Scanner) excluded(username string) bool {
	lower := strings.ToLower(username)
	for _, u := range s.opts.ExcludedUsers {
		if strings.EqualFold(u, username) {
			return true
		}
	}
	for _, sub := range s.opts.ExcludedSubstrings {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// readDir lists dir, treating any failure as an empty directory.
func (s *Scanner) readDir(dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read directory failed", "dir", dir, "error", err)
		}
		return nil
	}
	return entries
}

func sortByStoryNumber(stories []models.Story) {
	sort.SliceStable(stories, func(i, j int) bool {
		if stories[i].StoryNumber != stories[j].StoryNumber {
			return stories[i].StoryNumber < stories[j].StoryNumber
		}
		return stories[i].Filename < stories[j].Filename
	})
}

// GroupByUser indexes stories by username, preserving order within each user.
func GroupByUser(stories []models.Story) map[string][]models.Story {
	grouped := make(map[string][]models.Story)
	for _, story := range stories {
		grouped[story.Username] = append(grouped[story.Username], story)
	}
	return grouped
}

// GroupByDate indexes stories by their date folder.
func GroupByDate(stories []models.Story) map[string][]models.Story {
	grouped := make(map[string][]models.Story)
	for _, story := range stories {
		grouped[story.Date] = append(grouped[story.Date], story)
	}
	return grouped
}

// GroupSnapshotsByUser indexes profile snapshots by normalized username.
func GroupSnapshotsByUser(snapshots []models.ProfileSnapshot) map[string][]models.ProfileSnapshot {
	grouped := make(map[string][]models.ProfileSnapshot)
	for _, snap := range snapshots {
		grouped[snap.Username] = append(grouped[snap.Username], snap)
	}
	return grouped
}
