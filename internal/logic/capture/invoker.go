package capture

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/indicator"
)

// TimestampLayout is the YYYYMMDD_HHMMSS part of a photo filename.
const TimestampLayout = "20060102_150405"

// Filename builds prefix + timestamp + ext, e.g. photo_20240305_140709.jpg.
func Filename(prefix string, t time.Time, ext string) string {
	return prefix + t.Format(TimestampLayout) + ext
}

// Result is the outcome of one capture.
type Result struct {
	Filename string // path handed to the capture tool
	Err      error  // nil on success
}

// OK reports whether the capture succeeded.
func (r *Result) OK() bool { return r.Err == nil }

// Invoker names a photo after the current time and asks the camera to take it.
type Invoker struct {
	camera    camera.Camera
	indicator indicator.Indicator
	now       func() time.Time
	prefix    string
	ext       string
	dir       string
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Invoker) { i.now = now }
}

// WithNaming sets the filename prefix and extension.
func WithNaming(prefix, ext string) Option {
	return func(i *Invoker) {
		i.prefix = prefix
		i.ext = ext
	}
}

// WithOutputDir makes single captures land in dir instead of the working directory.
func WithOutputDir(dir string) Option {
	return func(i *Invoker) { i.dir = dir }
}

// WithIndicator signals capture activity, e.g. on a status LED.
func WithIndicator(ind indicator.Indicator) Option {
	return func(i *Invoker) {
		if ind != nil {
			i.indicator = ind
		}
	}
}

func NewInvoker(c camera.Camera, opts ...Option) *Invoker {
	i := &Invoker{
		camera:    c,
		indicator: indicator.Nop{},
		now:       time.Now,
		prefix:    "photo_",
		ext:       ".jpg",
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Capture takes one photo into the configured output directory.
// It blocks until the external tool exits.
func (i *Invoker) Capture(ctx context.Context) *Result {
	return i.captureInto(ctx, i.dir)
}

func (i *Invoker) captureInto(ctx context.Context, dir string) *Result {
	name := Filename(i.prefix, i.now(), i.ext)
	if dir != "" {
		name = filepath.Join(dir, name)
	}

	debug.Live("Starting capture: %s", name)
	i.indicator.Busy()
	err := i.camera.Capture(ctx, name)
	i.indicator.Done(err == nil)

	if err != nil {
		debug.Errorf("capture %s failed: %v", name, err)
		return &Result{Filename: name, Err: err}
	}
	debug.Shot(name)
	return &Result{Filename: name}
}
