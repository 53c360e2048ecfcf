package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"story-archive-backend/internal/logging"
)

func stubCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string{name}, args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestExecRunner_Success(t *testing.T) {
	var captured []string
	stubCommand(t, "success", &captured)

	r := NewExecRunner("/opt/ffmpeg", 0, logging.Discard())
	out, err := r.Run(context.Background(), "-i", "in.mp4", "-y", "out.mp4")
	require.NoError(t, err)
	assert.Contains(t, string(out), "frame=")
	assert.Equal(t, []string{"/opt/ffmpeg", "-hide_banner", "-nostdin", "-i", "in.mp4", "-y", "out.mp4"}, captured)
}

func TestExecRunner_ExitError(t *testing.T) {
	stubCommand(t, "failure", nil)

	r := NewExecRunner("", 0, logging.Discard())
	assert.Equal(t, "ffmpeg", r.Binary())

	_, err := r.Run(context.Background(), "-i", "missing.mp4")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Output, "No such file or directory")
	assert.Contains(t, err.Error(), "code 1")
}

func TestExecRunner_Timeout(t *testing.T) {
	stubCommand(t, "hang", nil)

	r := NewExecRunner("ffmpeg", 50*time.Millisecond, logging.Discard())
	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecRunner_Version(t *testing.T) {
	stubCommand(t, "version", nil)

	v, err := NewExecRunner("ffmpeg", 0, logging.Discard()).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg version 6.1.1", v)
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c | d", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "only", lastLines("only", 5))
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		fmt.Fprintln(os.Stderr, "frame=  180 fps=60 q=-1.0 Lsize=    1024kB")
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "missing.mp4: No such file or directory")
		os.Exit(1)
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "version":
		fmt.Println("ffmpeg version 6.1.1")
		fmt.Println("built with gcc")
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
