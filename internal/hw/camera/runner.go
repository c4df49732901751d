package camera

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Runner runs an external program to completion.
type Runner interface {
	// Run returns the captured stdout and stderr. exitCode is -1 when the
	// program could not be started or was terminated by a signal (including
	// a kill after ctx is cancelled); err is nil only for exit code 0.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, exitCode int, err error)
}

// ExecRunner is the os/exec implementation used in production.
type ExecRunner struct {
	Dir string // working directory; "" = current
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), err
	}
	return stdout.Bytes(), stderr.Bytes(), -1, err
}
