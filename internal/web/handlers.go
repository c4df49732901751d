package web

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/config"
)

// maxBodyBytes caps POST bodies; requests are a few dozen bytes of JSON.
const maxBodyBytes = 1 << 20

// CaptureFunc takes one photo and returns the filename handed to the tool.
// On failure the error carries the tool's diagnostic.
type CaptureFunc func(ctx context.Context) (string, error)

// SeriesFunc runs a photo series and returns the session folder.
type SeriesFunc func(ctx context.Context, req SeriesRequest) (string, error)

// SeriesRequest is the body of POST /series.
type SeriesRequest struct {
	TotalPhotos  int     `json:"total_photos"`
	TotalMinutes float64 `json:"total_minutes"`
}

// ValidateSeriesRequest applies the same rules as the series config section.
func ValidateSeriesRequest(r SeriesRequest) error {
	return config.ValidateSeries(r.TotalPhotos, r.TotalMinutes)
}

// FormConfig holds default values for the web form (from config).
type FormConfig struct {
	Tool         string  `json:"tool"`
	TotalPhotos  int     `json:"total_photos"`
	TotalMinutes float64 `json:"total_minutes"`
}

// Handlers holds dependencies for HTTP handlers.
// Only one capture or series runs at a time: the camera is a single device.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Capture      CaptureFunc
	Series       SeriesFunc
	FormDefaults FormConfig

	runningMu sync.Mutex
	running   bool
	jobs      sync.WaitGroup
	baseCtx   context.Context
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// A nil capture or series function makes the matching endpoint return 503.
func NewHandlers(broadcaster *StatusBroadcaster, capture CaptureFunc, series SeriesFunc, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		Capture:      capture,
		Series:       series,
		FormDefaults: formDefaults,
		baseCtx:      context.Background(),
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture: one photo, run in the background.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Capture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}
	if !h.start(w) {
		return
	}

	go h.run(func(ctx context.Context) {
		name, err := h.Capture(ctx)
		if err != nil {
			h.Broadcaster.Broadcast("error", "Capture failed: "+err.Error())
			log.Printf("capture failed: %v", err)
			return
		}
		h.Broadcaster.Broadcast("success", "Photo saved as "+name)
	})

	writeStarted(w)
}

// HandleSeries handles POST /series to start a timed photo series.
func (h *Handlers) HandleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SeriesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateSeriesRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Series == nil {
		http.Error(w, "series not configured", http.StatusServiceUnavailable)
		return
	}
	if !h.start(w) {
		return
	}

	go h.run(func(ctx context.Context) {
		dir, err := h.Series(ctx, req)
		if err != nil {
			h.Broadcaster.Broadcast("error", "Series failed: "+err.Error())
			log.Printf("series failed: %v", err)
			return
		}
		h.Broadcaster.Broadcast("success", "Series complete: "+dir)
	})

	writeStarted(w)
}

// start marks a job as running, or answers 409 if one already is.
func (h *Handlers) start(w http.ResponseWriter) bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	if h.running {
		http.Error(w, "capture already in progress", http.StatusConflict)
		return false
	}
	h.running = true
	h.jobs.Add(1)
	return true
}

func (h *Handlers) run(job func(ctx context.Context)) {
	defer func() {
		h.runningMu.Lock()
		h.running = false
		h.runningMu.Unlock()
		h.jobs.Done()
	}()
	job(h.baseCtx)
}

// Wait blocks until the running capture or series, if any, has finished.
func (h *Handlers) Wait() {
	h.jobs.Wait()
}

func writeStarted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
