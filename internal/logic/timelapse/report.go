package timelapse

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cjeanneret/SnapGo/internal/hw/camera"
)

// ErrorLabel precedes the encoder's diagnostic output on failure.
const ErrorLabel = "Error creating timelapse:"

// Report writes the outcome of Create to w. On failure the encoder's stderr
// is printed verbatim, or the error text when stderr is empty.
func Report(w io.Writer, res *Result, err error) error {
	if err == nil {
		_, werr := fmt.Fprintf(w, "Timelapse saved as %s (%d frames at %d fps, %v)\n",
			res.Output, res.Frames, res.FPS, res.Length())
		return werr
	}

	diag := err.Error()
	var cmdErr *camera.CommandError
	if errors.As(err, &cmdErr) {
		diag = cmdErr.Diagnostic()
	}
	if !strings.HasSuffix(diag, "\n") {
		diag += "\n"
	}
	_, werr := fmt.Fprintf(w, "%s\n%s", ErrorLabel, diag)
	return werr
}
