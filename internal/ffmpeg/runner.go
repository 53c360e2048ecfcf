// Package ffmpeg runs the ffmpeg binary and builds its argument lists.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"story-archive-backend/internal/logging"
)

var commandContext = exec.CommandContext

// Runner executes one ffmpeg invocation and returns its combined output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ExitError reports a non-zero ffmpeg exit.
type ExitError struct {
	Code   int
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.Code, lastLines(e.Output, 5))
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs ffmpeg as a subprocess bound to the caller's context.
type ExecRunner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewExecRunner(binary string, timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ExecRunner{
		binary:  binary,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "ffmpeg"),
	}
}

func (r *ExecRunner) Binary() string {
	return r.binary
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	full := append([]string{"-hide_banner", "-nostdin"}, args...)
	r.logger.Debug("running ffmpeg", "args", strings.Join(full, " "))

	start := time.Now()
	cmd := commandContext(ctx, r.binary, full...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, &ExitError{Code: exitErr.ExitCode(), Output: string(output), Err: err}
		}
		return output, fmt.Errorf("start %s: %w", r.binary, err)
	}

	r.logger.Debug("ffmpeg finished", "duration", time.Since(start))
	return output, nil
}

// Version returns the first line of `ffmpeg -version`.
func (r *ExecRunner) Version(ctx context.Context) (string, error) {
	output, err := commandContext(ctx, r.binary, "-version").Output() //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version: %w", err)
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line), nil
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
