package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Series folder names are SessionPrefix followed by a SessionLayout timestamp.
const (
	SessionPrefix = "series_"
	SessionLayout = "2006-01-02_15-04-05"
)

// SessionDir returns <dataDir>/series_YYYY-MM-DD_HH-MM-SS for t.
func SessionDir(dataDir string, t time.Time) string {
	return filepath.Join(dataDir, SessionPrefix+t.Format(SessionLayout))
}

// SeriesParams defines a timed photo series.
type SeriesParams struct {
	TotalPhotos   int           // photos to capture
	TotalDuration time.Duration // time budget for the whole series
	DataDir       string        // parent of the session folder
}

// Interval returns the pause between two shots.
func (p SeriesParams) Interval() time.Duration {
	if p.TotalPhotos <= 0 {
		return 0
	}
	return p.TotalDuration / time.Duration(p.TotalPhotos)
}

// SeriesResult summarizes a finished (or interrupted) series.
type SeriesResult struct {
	Dir      string
	Captured []string
	Failures int
	Elapsed  time.Duration
}

// RunSeries captures p.TotalPhotos photos into a fresh session folder, the
// first one immediately and the rest one interval apart. A failed shot does
// not count; the series keeps going until enough photos succeed or the time
// budget runs out. onShot, if not nil, receives every capture result.
//
// When ctx is cancelled the partial result is returned with ctx.Err().
func (i *Invoker) RunSeries(ctx context.Context, p SeriesParams, onShot func(*Result)) (*SeriesResult, error) {
	if p.TotalPhotos <= 0 || p.TotalDuration <= 0 {
		return nil, fmt.Errorf("invalid series: %d photos in %v", p.TotalPhotos, p.TotalDuration)
	}
	interval := p.Interval()

	dir := SessionDir(p.DataDir, i.now())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session folder: %w", err)
	}

	debug.Summary("Starting photo series")
	debug.Value("Number of photos", p.TotalPhotos)
	debug.Value("Duration", p.TotalDuration)
	debug.Value("Interval", interval)
	debug.Value("Output folder", dir)

	res := &SeriesResult{Dir: dir}
	start := time.Now()

	budget, cancel := context.WithTimeout(ctx, p.TotalDuration)
	defer cancel()

	// Bucket starts full: the first Wait returns at once.
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for len(res.Captured) < p.TotalPhotos {
		if err := limiter.Wait(budget); err != nil {
			if ctx.Err() != nil {
				res.Elapsed = time.Since(start)
				return res, ctx.Err()
			}
			debug.Verbose("Series: time budget exhausted (%v)", err)
			break
		}

		r := i.captureInto(ctx, dir)
		if onShot != nil {
			onShot(r)
		}
		if r.OK() {
			res.Captured = append(res.Captured, r.Filename)
			debug.Progress(len(res.Captured), p.TotalPhotos)
		} else {
			res.Failures++
			if ctx.Err() != nil {
				res.Elapsed = time.Since(start)
				return res, ctx.Err()
			}
		}
	}

	res.Elapsed = time.Since(start)
	debug.Success("Series completed: %d/%d photos, %d failures, %v",
		len(res.Captured), p.TotalPhotos, res.Failures, res.Elapsed.Round(time.Second))
	return res, nil
}

// WriteSummary prints the end-of-series summary for an operator.
func (r *SeriesResult) WriteSummary(w io.Writer, totalPhotos int) error {
	_, err := fmt.Fprintf(w,
		"Series completed: %s\n- Captured %d photos out of %d\n- Failed attempts: %d\n- Time elapsed: %.2f minutes\n",
		r.Dir, len(r.Captured), totalPhotos, r.Failures, r.Elapsed.Minutes())
	return err
}
