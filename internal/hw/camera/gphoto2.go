package camera

import (
	"context"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// GPhoto2 drives a USB-tethered camera through the gphoto2 command-line tool.
// The tool itself writes the image file.
type GPhoto2 struct {
	tool   string
	runner Runner
}

// NewGPhoto2 returns a Camera running tool (usually "gphoto2") via runner.
// A nil runner means ExecRunner{}.
func NewGPhoto2(tool string, runner Runner) *GPhoto2 {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &GPhoto2{tool: tool, runner: runner}
}

// Args returns the command-line arguments for capturing into path.
func Args(path string) []string {
	return []string{"--capture-image-and-download", "--filename=" + path}
}

// Capture runs `<tool> --capture-image-and-download --filename=<path>` and
// waits for it. Any failure is returned as a *CommandError.
func (g *GPhoto2) Capture(ctx context.Context, path string) error {
	args := Args(path)
	debug.Verbose("Camera: running %s %v", g.tool, args)

	stdout, stderr, code, err := g.runner.Run(ctx, g.tool, args...)
	if len(stdout) > 0 {
		debug.Trace("Camera: %s stdout: %s", g.tool, stdout)
	}
	if err != nil {
		return &CommandError{
			Tool:     g.tool,
			Args:     args,
			ExitCode: code,
			Stderr:   string(stderr),
			Err:      err,
		}
	}

	debug.Verbose("Camera: %s exited 0", g.tool)
	return nil
}
