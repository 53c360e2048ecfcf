package ffmpeg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	FallbackSize = "1080x1920"
	FallbackRate = 30
)

// Options are the encoder settings shared by every re-encoding command.
type Options struct {
	Preset       string
	CRF          int
	ImageSeconds int
	FontColor    string
	FontSize     int
}

func DefaultOptions() Options {
	return Options{
		Preset:       "ultrafast",
		CRF:          23,
		ImageSeconds: 6,
		FontColor:    "white",
		FontSize:     24,
	}
}

func (o Options) encode() []string {
	return []string{"-preset", o.Preset, "-crf", strconv.Itoa(o.CRF)}
}

// input loops still images so they can be cut to a fixed length. -loop must precede -i.
func (o Options) input(path string, image bool) []string {
	if image {
		return []string{"-loop", "1", "-i", path}
	}
	return []string{"-i", path}
}

func (o Options) stillTail(image bool) []string {
	if !image {
		return nil
	}
	return []string{"-t", strconv.Itoa(o.ImageSeconds), "-pix_fmt", "yuv420p"}
}

// OverlayArgs composites a full-frame PNG over a video.
func OverlayArgs(o Options, input, overlay, output string) []string {
	args := []string{
		"-i", input,
		"-i", overlay,
		"-filter_complex", "[0:v][1:v]overlay=0:0",
		"-c:a", "copy",
	}
	args = append(args, o.encode()...)
	return append(args, "-movflags", "+faststart", "-y", output)
}

// ConcatArgs joins the files of a concat list without re-encoding.
func ConcatArgs(list, output string) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", list, "-c", "copy", "-y", output}
}

// FinalConcatArgs joins encoded segments, regenerating timestamps.
func FinalConcatArgs(list, output string) []string {
	return []string{
		"-f", "concat", "-safe", "0", "-i", list,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts",
		"-y", output,
	}
}

// LabeledSegmentArgs encodes one story with a "Story i/n" label burned in.
func LabeledSegmentArgs(o Options, input string, image bool, label, output string) []string {
	args := o.input(input, image)
	args = append(args, o.stillTail(image)...)
	filter := fmt.Sprintf("drawtext=text='%s':fontcolor=%s:fontsize=%d:x=40:y=40:shadowcolor=black:shadowx=1:shadowy=1",
		EscapeDrawtext(label), o.FontColor, o.FontSize)
	args = append(args, "-vf", filter, "-c:a", "copy")
	args = append(args, o.encode()...)
	return append(args, "-y", output)
}

// OverlaySegmentArgs encodes one story with its overlay PNG on top.
func OverlaySegmentArgs(o Options, input string, image bool, overlay, output string) []string {
	args := o.input(input, image)
	args = append(args, "-i", overlay, "-filter_complex", "[0:v][1:v]overlay=0:0")
	args = append(args, o.stillTail(image)...)
	args = append(args, "-c:a", "copy")
	args = append(args, o.encode()...)
	return append(args, "-movflags", "+faststart", "-y", output)
}

// PlainSegmentArgs re-encodes one story as is.
func PlainSegmentArgs(o Options, input string, image bool, output string) []string {
	args := o.input(input, image)
	args = append(args, o.stillTail(image)...)
	args = append(args, "-c:a", "copy")
	args = append(args, o.encode()...)
	return append(args, "-movflags", "+faststart", "-y", output)
}

// MissingSegmentArgs renders a black placeholder clip for a story whose file is gone.
func MissingSegmentArgs(o Options, output string) []string {
	source := fmt.Sprintf("color=black:size=%s:duration=%d:rate=%d", FallbackSize, o.ImageSeconds, FallbackRate)
	filter := fmt.Sprintf("drawtext=text='Missing Video':fontcolor=%s:fontsize=%d:x=(w-text_w)/2:y=(h-text_h)/2",
		o.FontColor, o.FontSize*2)
	args := []string{"-f", "lavfi", "-i", source, "-vf", filter, "-c:v", "libx264"}
	args = append(args, o.encode()...)
	return append(args, "-pix_fmt", "yuv420p", "-y", output)
}

var (
	drawtextExpansion = strings.NewReplacer(`\`, `\\`, `%`, `\%`)
	drawtextOption    = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
)

// EscapeDrawtext renders text for use inside a single-quoted drawtext
// text='...' value. Three layers unescape it in turn: the filtergraph quotes,
// the option parser and drawtext's own %{} expansion. Backslash is literal
// inside the filtergraph quotes, so a quote closes and reopens them.
func EscapeDrawtext(text string) string {
	escaped := drawtextOption.Replace(drawtextExpansion.Replace(text))
	return strings.ReplaceAll(escaped, `'`, `'\''`)
}

// ConcatList renders the concat demuxer input for files.
func ConcatList(files []string) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(f, `'`, `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// WriteConcatList writes the concat demuxer input for files to path.
func WriteConcatList(path string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("write concat list: no files")
	}
	if err := os.WriteFile(path, []byte(ConcatList(files)), 0o600); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}
