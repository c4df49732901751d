package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

// ---------- ValidateSeriesRequest ----------

func TestValidateSeriesRequest_Valid(t *testing.T) {
	cases := []struct {
		name string
		r    SeriesRequest
	}{
		{"defaults", SeriesRequest{24, 5}},
		{"one_per_second", SeriesRequest{60, 1}},
		{"single_photo", SeriesRequest{1, 0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateSeriesRequest(tc.r); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateSeriesRequest_Invalid(t *testing.T) {
	cases := []struct {
		name string
		r    SeriesRequest
	}{
		{"zero_photos", SeriesRequest{0, 5}},
		{"negative_photos", SeriesRequest{-3, 5}},
		{"zero_minutes", SeriesRequest{10, 0}},
		{"negative_minutes", SeriesRequest{10, -1}},
		{"interval_below_one_second", SeriesRequest{100, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateSeriesRequest(tc.r); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- Handler helpers ----------

func newTestHandlers(capture CaptureFunc, series SeriesFunc) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(
		NewStatusBroadcaster(),
		capture,
		series,
		FormConfig{Tool: "gphoto2", TotalPhotos: 24, TotalMinutes: 5},
		staticFS,
	)
}

func okCapture(_ context.Context) (string, error) {
	return "photo_20240305_140709.jpg", nil
}

func okSeries(_ context.Context, _ SeriesRequest) (string, error) {
	return "data/series_2024-03-05_14-07-09", nil
}

func seriesJSON(photos int, minutes float64) []byte {
	data, _ := json.Marshal(SeriesRequest{TotalPhotos: photos, TotalMinutes: minutes})
	return data
}

// nextEvent reads one broadcast event or fails after a second.
func nextEvent(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
	return StatusEvent{}
}

// ---------- HandleCapture ----------

func TestHandleCapture_Accepted(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w := httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	h.Wait()

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "started" {
		t.Errorf("response status = %q, want \"started\"", resp["status"])
	}

	evt := nextEvent(t, ch)
	if evt.Level != "success" || !strings.Contains(evt.Msg, "photo_20240305_140709.jpg") {
		t.Errorf("event = %+v, want success with filename", evt)
	}
}

func TestHandleCapture_FailureBroadcast(t *testing.T) {
	h := newTestHandlers(func(context.Context) (string, error) {
		return "", errors.New("*** Error: No camera found. ***")
	}, nil)
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w := httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	h.Wait()

	evt := nextEvent(t, ch)
	if evt.Level != "error" {
		t.Errorf("level = %q, want error", evt.Level)
	}
	if !strings.Contains(evt.Msg, "No camera found") {
		t.Errorf("msg = %q, want tool diagnostic", evt.Msg)
	}
}

func TestHandleCapture_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	w := httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodGet, "/capture", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleCapture_NotConfigured(t *testing.T) {
	h := newTestHandlers(nil, nil)
	w := httptest.NewRecorder()
	h.HandleCapture(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleCapture_ConflictWhileRunning(t *testing.T) {
	release := make(chan struct{})
	h := newTestHandlers(func(context.Context) (string, error) {
		<-release
		return "photo.jpg", nil
	}, okSeries)

	w1 := httptest.NewRecorder()
	h.HandleCapture(w1, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first status = %d, want %d", w1.Code, http.StatusAccepted)
	}

	w2 := httptest.NewRecorder()
	h.HandleCapture(w2, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w2.Code != http.StatusConflict {
		t.Errorf("second capture status = %d, want %d", w2.Code, http.StatusConflict)
	}

	w3 := httptest.NewRecorder()
	h.HandleSeries(w3, httptest.NewRequest(http.MethodPost, "/series", bytes.NewReader(seriesJSON(24, 5))))
	if w3.Code != http.StatusConflict {
		t.Errorf("series during capture status = %d, want %d", w3.Code, http.StatusConflict)
	}

	close(release)
	h.Wait()

	w4 := httptest.NewRecorder()
	h.HandleCapture(w4, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w4.Code != http.StatusAccepted {
		t.Errorf("capture after finish status = %d, want %d", w4.Code, http.StatusAccepted)
	}
	h.Wait()
}

// ---------- HandleSeries ----------

func TestHandleSeries_Accepted(t *testing.T) {
	var got SeriesRequest
	h := newTestHandlers(okCapture, func(_ context.Context, r SeriesRequest) (string, error) {
		got = r
		return "data/series_x", nil
	})
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w := httptest.NewRecorder()
	h.HandleSeries(w, httptest.NewRequest(http.MethodPost, "/series", bytes.NewReader(seriesJSON(12, 1))))
	h.Wait()

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if got.TotalPhotos != 12 || got.TotalMinutes != 1 {
		t.Errorf("series got %+v", got)
	}
	evt := nextEvent(t, ch)
	if evt.Level != "success" || !strings.Contains(evt.Msg, "data/series_x") {
		t.Errorf("event = %+v", evt)
	}
}

func TestHandleSeries_InvalidJSON(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	w := httptest.NewRecorder()
	h.HandleSeries(w, httptest.NewRequest(http.MethodPost, "/series", strings.NewReader("not json")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSeries_InvalidParams(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	w := httptest.NewRecorder()
	h.HandleSeries(w, httptest.NewRequest(http.MethodPost, "/series", bytes.NewReader(seriesJSON(1000, 1))))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSeries_OversizedBody(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	big := `{"total_photos": 1, "pad": "` + strings.Repeat("x", 2<<20) + `"}`
	w := httptest.NewRecorder()
	h.HandleSeries(w, httptest.NewRequest(http.MethodPost, "/series", strings.NewReader(big)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleSeries_NotConfigured(t *testing.T) {
	h := newTestHandlers(okCapture, nil)
	w := httptest.NewRecorder()
	h.HandleSeries(w, httptest.NewRequest(http.MethodPost, "/series", bytes.NewReader(seriesJSON(24, 5))))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ---------- HandleConfig / ServeIndex ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	w := httptest.NewRecorder()
	h.HandleConfig(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var cfg FormConfig
	if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Tool != "gphoto2" || cfg.TotalPhotos != 24 || cfg.TotalMinutes != 5 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<html>test</html>") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), okCapture, okSeries, FormConfig{}, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------- HandleStatusStream ----------

func TestHandleStatusStream(t *testing.T) {
	h := newTestHandlers(okCapture, okSeries)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/status/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.HandleStatusStream(w, req)
		close(done)
	}()

	// wait for the handler to subscribe
	deadline := time.Now().Add(time.Second)
	for h.Broadcaster.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Broadcaster.Broadcast("success", "Photo saved as photo.jpg")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, ": connected\n\n") {
		t.Errorf("stream should start with connected comment: %q", body)
	}
	if !strings.Contains(body, "data: ") || !strings.Contains(body, "Photo saved as photo.jpg") {
		t.Errorf("stream missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

// ---------- Server routing ----------

func TestServerMux_Routes(t *testing.T) {
	srv, err := NewServer(":0", NewStatusBroadcaster(), okCapture, okSeries, FormConfig{Tool: "gphoto2"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("GET / = %d, want 200 (embedded index)", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/config")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("GET /config = %d", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/capture")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /capture = %d, want 405", res.StatusCode)
	}

	res, err = http.Post(ts.URL+"/capture", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Errorf("POST /capture = %d, want 202", res.StatusCode)
	}
	srv.handlers.Wait()

	res, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", res.StatusCode)
	}
}

func TestServerRun_ShutsDownOnCancel(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", NewStatusBroadcaster(), okCapture, okSeries, FormConfig{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
