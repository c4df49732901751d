package capture

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cjeanneret/SnapGo/internal/hw/camera"
)

// ErrorLabel precedes the tool's diagnostic output on failure.
const ErrorLabel = "Error capturing image:"

// Report writes the human-readable outcome of r to w:
//
//	Photo saved as photo_20240305_140709.jpg
//
// or, on failure, ErrorLabel on its own line followed by the tool's stderr verbatim.
func Report(w io.Writer, r *Result) error {
	if r.OK() {
		_, err := fmt.Fprintf(w, "Photo saved as %s\n", r.Filename)
		return err
	}

	diag := r.Err.Error()
	var cmdErr *camera.CommandError
	if errors.As(r.Err, &cmdErr) {
		diag = cmdErr.Diagnostic()
	}
	if !strings.HasSuffix(diag, "\n") {
		diag += "\n"
	}
	_, err := fmt.Fprintf(w, "%s\n%s", ErrorLabel, diag)
	return err
}
