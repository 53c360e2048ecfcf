package ffmpeg_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"story-archive-backend/internal/ffmpeg"
)

func TestOverlayArgs(t *testing.T) {
	args := ffmpeg.OverlayArgs(ffmpeg.DefaultOptions(), "in.mp4", "overlay.png", "out.mp4")
	assert.Equal(t, []string{
		"-i", "in.mp4",
		"-i", "overlay.png",
		"-filter_complex", "[0:v][1:v]overlay=0:0",
		"-c:a", "copy",
		"-preset", "ultrafast",
		"-crf", "23",
		"-movflags", "+faststart",
		"-y", "out.mp4",
	}, args)
}

func TestConcatArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-f", "concat", "-safe", "0", "-i", "list.txt", "-c", "copy", "-y", "out.mp4"},
		ffmpeg.ConcatArgs("list.txt", "out.mp4"))

	final := ffmpeg.FinalConcatArgs("list.txt", "out.mp4")
	assert.Contains(t, final, "make_zero")
	assert.Contains(t, final, "+genpts")
	assert.Equal(t, "out.mp4", final[len(final)-1])
}

func TestLabeledSegmentArgs_ImageLoopsBeforeInput(t *testing.T) {
	opts := ffmpeg.DefaultOptions()
	opts.ImageSeconds = 4

	args := ffmpeg.LabeledSegmentArgs(opts, "pic.jpg", true, "Story 2/5", "seg.mp4")
	require.GreaterOrEqual(t, len(args), 4)
	assert.Equal(t, []string{"-loop", "1", "-i", "pic.jpg"}, args[:4])
	assert.Contains(t, args, "yuv420p")

	tIdx := indexOf(args, "-t")
	require.NotEqual(t, -1, tIdx)
	assert.Equal(t, "4", args[tIdx+1])

	vf := args[indexOf(args, "-vf")+1]
	assert.Contains(t, vf, "text='Story 2/5'")
	assert.Contains(t, vf, "fontcolor=white:fontsize=24:x=40:y=40")
}

func TestLabeledSegmentArgs_Video(t *testing.T) {
	args := ffmpeg.LabeledSegmentArgs(ffmpeg.DefaultOptions(), "clip.mp4", false, "Story 1/1", "seg.mp4")
	assert.Equal(t, []string{"-i", "clip.mp4"}, args[:2])
	assert.Equal(t, -1, indexOf(args, "-loop"))
	assert.Equal(t, -1, indexOf(args, "-t"))
}

func TestOverlaySegmentArgs(t *testing.T) {
	args := ffmpeg.OverlaySegmentArgs(ffmpeg.DefaultOptions(), "pic.png", true, "ov.png", "seg.mp4")
	assert.Equal(t, []string{"-loop", "1", "-i", "pic.png", "-i", "ov.png", "-filter_complex", "[0:v][1:v]overlay=0:0"}, args[:8])
	assert.Contains(t, args, "+faststart")

	plain := ffmpeg.PlainSegmentArgs(ffmpeg.DefaultOptions(), "clip.mp4", false, "seg.mp4")
	assert.Equal(t, -1, indexOf(plain, "-filter_complex"))
	assert.Equal(t, "seg.mp4", plain[len(plain)-1])
}

func TestMissingSegmentArgs(t *testing.T) {
	args := ffmpeg.MissingSegmentArgs(ffmpeg.DefaultOptions(), "missing.mp4")
	assert.Equal(t, []string{"-f", "lavfi", "-i", "color=black:size=1080x1920:duration=6:rate=30"}, args[:4])
	assert.Contains(t, args[indexOf(args, "-vf")+1], "text='Missing Video'")
	assert.Contains(t, args[indexOf(args, "-vf")+1], "fontsize=48")
	assert.Contains(t, args, "libx264")
}

func TestEscapeDrawtext(t *testing.T) {
	assert.Equal(t, "Story 1/3", ffmpeg.EscapeDrawtext("Story 1/3"))
	assert.Equal(t, `50\\% \: done`, ffmpeg.EscapeDrawtext("50% : done"))
	assert.Equal(t, `it\'\''s`, ffmpeg.EscapeDrawtext("it's"))
	assert.Equal(t, `a\\\\b`, ffmpeg.EscapeDrawtext(`a\b`))
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")

	require.NoError(t, ffmpeg.WriteConcatList(list, []string{"/tmp/a.mp4", "/tmp/it's.mp4"}))

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n", string(data))

	assert.Error(t, ffmpeg.WriteConcatList(list, nil))
}

func indexOf(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
