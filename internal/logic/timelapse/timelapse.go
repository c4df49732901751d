package timelapse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
)

var (
	// ErrNoFrames is returned when the folder holds no photo matching the pattern.
	ErrNoFrames = errors.New("no photos found")
	// ErrNoSession is returned when the data folder holds no series folder.
	ErrNoSession = errors.New("no series folder found")
)

// Settings control the encode.
type Settings struct {
	Tool    string // encoder binary, usually "ffmpeg"
	FPS     int
	CRF     int    // x264 constant rate factor
	Output  string // file name, written inside the series folder
	Pattern string // glob of input photos, relative to the series folder
}

// Result describes a finished video.
type Result struct {
	Output string
	Frames int
	FPS    int
}

// Length returns the playback time of the video.
func (r *Result) Length() time.Duration {
	if r.FPS <= 0 {
		return 0
	}
	return time.Duration(r.Frames) * time.Second / time.Duration(r.FPS)
}

// Creator turns the photos of a series folder into an H.264 video.
type Creator struct {
	s      Settings
	runner camera.Runner
}

// New returns a Creator running s.Tool via runner. A nil runner means camera.ExecRunner{}.
func New(s Settings, runner camera.Runner) *Creator {
	if runner == nil {
		runner = camera.ExecRunner{}
	}
	return &Creator{s: s, runner: runner}
}

// Args returns the encoder arguments for the photos in dir.
func (c *Creator) Args(dir string) []string {
	return []string{
		"-y",
		"-framerate", strconv.Itoa(c.s.FPS),
		"-pattern_type", "glob",
		"-i", filepath.Join(dir, c.s.Pattern),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-crf", strconv.Itoa(c.s.CRF),
		filepath.Join(dir, c.s.Output),
	}
}

// Create encodes every photo of dir matching the pattern, in name order, into
// dir/<Output>. A failed encode is returned as a *camera.CommandError.
func (c *Creator) Create(ctx context.Context, dir string) (*Result, error) {
	frames, err := filepath.Glob(filepath.Join(dir, c.s.Pattern))
	if err != nil {
		return nil, fmt.Errorf("match photos: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w in %s (%s)", ErrNoFrames, dir, c.s.Pattern)
	}

	args := c.Args(dir)
	debug.Summary("Creating timelapse")
	debug.Value("Folder", dir)
	debug.Value("Frames", len(frames))
	debug.Value("Frame rate", c.s.FPS)
	debug.Value("CRF", c.s.CRF)
	debug.Verbose("Timelapse: running %s %s", c.s.Tool, strings.Join(args, " "))

	_, stderr, code, err := c.runner.Run(ctx, c.s.Tool, args...)
	if err != nil {
		return nil, &camera.CommandError{
			Tool:     c.s.Tool,
			Args:     args,
			ExitCode: code,
			Stderr:   string(stderr),
			Err:      err,
		}
	}

	res := &Result{Output: filepath.Join(dir, c.s.Output), Frames: len(frames), FPS: c.s.FPS}
	debug.Success("Timelapse saved: %s (%v)", res.Output, res.Length())
	return res, nil
}

// LatestSession returns the most recently modified series folder under dataDir.
func LatestSession(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNoSession, dataDir)
		}
		return "", fmt.Errorf("read data folder: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), capture.SessionPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dataDir, e.Name())
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoSession, dataDir)
	}
	return latest, nil
}
