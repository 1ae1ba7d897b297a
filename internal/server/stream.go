package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/shoplens/internal/capture"
	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/overlay"
)

// StreamHandler serves MJPEG frames from the attached camera with the overlay
// burned in. It is the session's video sink: nothing is served while detached.
type StreamHandler struct {
	markers func() []overlay.Marker
	logger  *zap.SugaredLogger

	mu     sync.RWMutex
	camera capture.Camera
	// gen changes on every Attach and Detach so open streams notice a detach.
	gen uint64
}

// NewStreamHandler creates a detached StreamHandler. markers may be nil.
func NewStreamHandler(markers func() []overlay.Marker, logger *zap.SugaredLogger) *StreamHandler {
	return &StreamHandler{markers: markers, logger: logging.OrNop(logger)}
}

// Attach starts serving frames from cam.
func (h *StreamHandler) Attach(cam capture.Camera) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.camera = cam
	h.gen++
}

// Detach stops serving frames and ends open streams.
func (h *StreamHandler) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.camera = nil
	h.gen++
}

// Attached reports whether a camera is attached.
func (h *StreamHandler) Attached() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.camera != nil
}

func (h *StreamHandler) current() (capture.Camera, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.camera, h.gen
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cam, gen := h.current()
	if cam == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"webcam is not active"}`)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fps := cam.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	frameInterval := time.Second / time.Duration(fps)

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		if _, g := h.current(); g != gen {
			return
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if h.markers != nil {
			if err := overlay.Draw(frame, h.markers()); err != nil {
				h.logger.Debugf("Overlay burn-in failed: %v", err)
			}
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
		frame.Close()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		time.Sleep(frameInterval)
	}
}
