package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/ffmpeg"
	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/models"
)

const (
	DefaultConcatName = "concatenated_output.mp4"
	DefaultVisualName = "visual_experience.mp4"

	concatListName = "concat_list.txt"
	outputName     = "output.mp4"
)

// Resolver maps archive paths to files on disk.
type Resolver interface {
	Resolve(rel string) (string, error)
}

// Result describes a finished export still sitting in its workspace.
type Result struct {
	Path     string
	Filename string
	Size     int64
	Inputs   int
	Segments int
}

type OverlayRequest struct {
	InputPath string
	Overlay   Upload
}

type ConcatRequest struct {
	Videos         []Upload
	OutputFilename string
}

type VisualRequest struct {
	Stories        []models.StoryRef
	OutputFilename string
}

type OverlayExperienceRequest struct {
	Segments []models.StorySegment
	// Overlays are keyed by overlay index, which defaults to the segment index.
	Overlays       map[int]Upload
	OutputFilename string
	Progress       ProgressFunc
}

// Pipeline turns export requests into ffmpeg invocations inside a Workspace.
// It never removes the workspace; the caller owns its lifetime.
type Pipeline struct {
	runner   ffmpeg.Runner
	resolver Resolver
	opts     ffmpeg.Options
	logger   *slog.Logger
}

func NewPipeline(runner ffmpeg.Runner, resolver Resolver, opts ffmpeg.Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		runner:   runner,
		resolver: resolver,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "export"),
	}
}

// ProcessOverlay composites one uploaded PNG over an archived video.
func (p *Pipeline) ProcessOverlay(ctx context.Context, ws *Workspace, req OverlayRequest) (*Result, error) {
	if req.InputPath == "" || req.Overlay.Open == nil {
		return nil, Invalid("Missing required parameters: input_path and overlay_png")
	}

	input, err := p.resolver.Resolve(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", req.InputPath, err)
	}

	overlay, err := ws.SaveUpload("overlay.png", req.Overlay)
	if err != nil {
		return nil, fmt.Errorf("failed to save overlay file: %w", err)
	}

	output := ws.File(outputName)
	if _, err := p.runner.Run(ctx, ffmpeg.OverlayArgs(p.opts, input, overlay, output)...); err != nil {
		return nil, fmt.Errorf("ffmpeg processing failed: %w", err)
	}

	size, err := nonEmpty(output)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:     output,
		Filename: ExportedName(req.InputPath),
		Size:     size,
		Inputs:   1,
		Segments: 1,
	}, nil
}

// Concatenate joins uploaded clips in order without re-encoding.
func (p *Pipeline) Concatenate(ctx context.Context, ws *Workspace, req ConcatRequest) (*Result, error) {
	if len(req.Videos) == 0 {
		return nil, Invalid("Invalid video count")
	}

	inputs := make([]string, 0, len(req.Videos))
	for i, video := range req.Videos {
		saved, err := ws.SaveUpload(fmt.Sprintf("concat_input_%d.mp4", i), video)
		if err != nil {
			return nil, fmt.Errorf("failed to save video file %d: %w", i, err)
		}
		inputs = append(inputs, saved)
	}

	output, err := p.concat(ctx, ws, inputs, ffmpeg.ConcatArgs)
	if err != nil {
		return nil, err
	}

	size, err := nonEmpty(output)
	if err != nil {
		return nil, err
	}

	p.logger.Info("videos concatenated", "inputs", len(inputs), "size", size)
	return &Result{
		Path:     output,
		Filename: OutputName(req.OutputFilename, DefaultConcatName),
		Size:     size,
		Inputs:   len(inputs),
		Segments: len(inputs),
	}, nil
}

// VisualExperience renders each story as a labelled segment and joins them.
// Stories that cannot be found or encoded are skipped.
func (p *Pipeline) VisualExperience(ctx context.Context, ws *Workspace, req VisualRequest) (*Result, error) {
	total := len(req.Stories)
	if total == 0 {
		return nil, Invalid("No story paths provided")
	}

	segments := make([]string, 0, total)
	for i, story := range req.Stories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		input, err := p.resolver.Resolve(story.Path)
		if err != nil {
			p.logger.Warn("story skipped", "index", i, "path", story.Path, "error", err)
			continue
		}

		segment := ws.File(fmt.Sprintf("segment_%03d.mp4", i))
		label := fmt.Sprintf("Story %d/%d", i+1, total)
		args := ffmpeg.LabeledSegmentArgs(p.opts, input, archive.IsImage(input), label, segment)
		if _, err := p.runner.Run(ctx, args...); err != nil {
			p.logger.Warn("segment failed", "index", i, "path", story.Path, "error", err)
			continue
		}
		if _, err := nonEmpty(segment); err != nil {
			p.logger.Warn("segment empty", "index", i, "path", story.Path)
			continue
		}
		segments = append(segments, segment)
	}

	return p.finish(ctx, ws, segments, total, OutputName(req.OutputFilename, DefaultVisualName))
}

// VisualExperienceWithOverlays renders each segment with its client-drawn
// overlay. Unlike VisualExperience it keeps the timeline intact: missing
// stories become black placeholder clips and overlay problems fall back to
// the bare story.
func (p *Pipeline) VisualExperienceWithOverlays(ctx context.Context, ws *Workspace, req OverlayExperienceRequest) (*Result, error) {
	total := len(req.Segments)
	if total == 0 {
		return nil, Invalid("No story segments provided")
	}

	progress := req.Progress
	if progress == nil {
		progress = LogProgress(p.logger)
	}
	progress(Progress{Kind: models.ExportKindVisualWithOverlay, Total: total, Message: "starting export"})

	segments := make([]string, 0, total)
	for i, seg := range req.Segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(segmentProgress(models.ExportKindVisualWithOverlay, i, total))

		if segment, ok := p.overlaySegment(ctx, ws, i, seg, req.Overlays); ok {
			segments = append(segments, segment)
		}
	}

	result, err := p.finish(ctx, ws, segments, total, OutputName(req.OutputFilename, DefaultVisualName))
	if err != nil {
		return nil, err
	}
	progress(Progress{Kind: models.ExportKindVisualWithOverlay, Percent: 100, Segment: total, Total: total, Message: "export completed"})
	return result, nil
}

func (p *Pipeline) overlaySegment(ctx context.Context, ws *Workspace, i int, seg models.StorySegment, overlays map[int]Upload) (string, bool) {
	logger := p.logger.With("index", i, "path", seg.Path)

	input, err := p.resolver.Resolve(seg.Path)
	if err != nil {
		logger.Warn("story missing, using placeholder", "error", err)
		missing := ws.File(fmt.Sprintf("missing_%03d.mp4", i))
		return p.encode(ctx, logger, missing, ffmpeg.MissingSegmentArgs(p.opts, missing))
	}
	image := archive.IsImage(input)
	plain := ws.File(fmt.Sprintf("plain_%03d.mp4", i))

	key := i
	if seg.OverlayIndex != nil {
		key = *seg.OverlayIndex
	}
	upload, found := overlays[key]
	if !found {
		logger.Info("no overlay for segment")
		return p.encode(ctx, logger, plain, ffmpeg.PlainSegmentArgs(p.opts, input, image, plain))
	}

	overlay, err := ws.SaveUpload(fmt.Sprintf("overlay_%03d.png", i), upload)
	if err != nil {
		logger.Warn("overlay not saved", "error", err)
		return p.encode(ctx, logger, plain, ffmpeg.PlainSegmentArgs(p.opts, input, image, plain))
	}
	defer os.Remove(overlay)

	segment := ws.File(fmt.Sprintf("segment_%03d.mp4", i))
	if out, ok := p.encode(ctx, logger, segment, ffmpeg.OverlaySegmentArgs(p.opts, input, image, overlay, segment)); ok {
		return out, true
	}
	logger.Info("retrying segment without overlay")
	return p.encode(ctx, logger, plain, ffmpeg.PlainSegmentArgs(p.opts, input, image, plain))
}

func (p *Pipeline) encode(ctx context.Context, logger *slog.Logger, output string, args []string) (string, bool) {
	if _, err := p.runner.Run(ctx, args...); err != nil {
		logger.Warn("segment encode failed", "error", err)
		return "", false
	}
	if _, err := nonEmpty(output); err != nil {
		logger.Warn("segment encode produced no output")
		return "", false
	}
	return output, true
}

func (p *Pipeline) finish(ctx context.Context, ws *Workspace, segments []string, total int, filename string) (*Result, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	output, err := p.concat(ctx, ws, segments, ffmpeg.FinalConcatArgs)
	if err != nil {
		return nil, err
	}
	size, err := nonEmpty(output)
	if err != nil {
		return nil, err
	}

	p.logger.Info("visual experience created", "segments", len(segments), "stories", total, "size", size)
	return &Result{
		Path:     output,
		Filename: filename,
		Size:     size,
		Inputs:   total,
		Segments: len(segments),
	}, nil
}

func (p *Pipeline) concat(ctx context.Context, ws *Workspace, inputs []string, build func(list, output string) []string) (string, error) {
	list := ws.File(concatListName)
	if err := ffmpeg.WriteConcatList(list, inputs); err != nil {
		return "", err
	}
	output := ws.File(outputName)
	if _, err := p.runner.Run(ctx, build(list, output)...); err != nil {
		return "", fmt.Errorf("ffmpeg concatenation failed: %w", err)
	}
	return output, nil
}

// OutputName reduces a client-supplied filename to its base name.
func OutputName(name, fallback string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return fallback
	}
	return base
}

// ExportedName is the download name of an overlay export: clip.mp4 becomes clip_exported.mp4.
func ExportedName(inputPath string) string {
	base := path.Base(strings.ReplaceAll(inputPath, `\`, "/"))
	return strings.TrimSuffix(base, ".mp4") + "_exported.mp4"
}
