package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera" that can take a photo and store it
// at path, regardless of how the device is driven.
type Camera interface {
	// Capture takes one photo and blocks until it is written to path.
	Capture(ctx context.Context, path string) error
}

// ErrCaptureFailed is matched by every error returned when the external
// capture tool fails, whatever the cause (device, permissions, missing tool).
var ErrCaptureFailed = errors.New("capture command failed")

// CommandError describes a failed run of an external tool (gphoto2, ffmpeg).
type CommandError struct {
	Tool     string
	Args     []string
	ExitCode int    // -1 if the process could not be started or was killed by a signal
	Stderr   string // captured diagnostic stream, verbatim
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: exit code %d", e.Tool, strings.Join(e.Args, " "), e.ExitCode)
	if e.ExitCode < 0 && e.Err != nil {
		msg = fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == ErrCaptureFailed }

// Diagnostic returns what an operator should see: the tool's stderr when it
// produced any, the underlying error text otherwise.
func (e *CommandError) Diagnostic() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Error()
}
