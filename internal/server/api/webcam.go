package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/poller"
	"github.com/ayusman/shoplens/internal/session"
)

// WebcamHandler handles /api/webcam and its start, stop and toggle actions.
type WebcamHandler struct {
	ctrl   Webcam
	logger *zap.SugaredLogger
}

// NewWebcamHandler creates a new WebcamHandler.
func NewWebcamHandler(ctrl Webcam, logger *zap.SugaredLogger) *WebcamHandler {
	return &WebcamHandler{ctrl: ctrl, logger: logging.OrNop(logger)}
}

type webcamResponse struct {
	Active    bool         `json:"active"`
	State     string       `json:"state"`
	SessionID string       `json:"session_id,omitempty"`
	StartedAt string       `json:"started_at,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	Stats     poller.Stats `json:"stats"`
}

func toWebcamResponse(s session.Snapshot) webcamResponse {
	resp := webcamResponse{
		Active:    s.Active(),
		State:     string(s.State),
		SessionID: s.SessionID,
		LastError: s.LastError,
		Stats:     s.Stats,
	}
	if s.Active() {
		resp.StartedAt = s.StartedAt.Format(time.RFC3339)
	}
	return resp
}

// ServeHTTP routes /api/webcam and /api/webcam/{action}.
func (h *WebcamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/webcam")
	action = strings.Trim(action, "/")

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, toWebcamResponse(h.ctrl.Snapshot()))
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.logger.Debugf("Webcam %s requested from %s", action, r.RemoteAddr)

	var err error
	switch action {
	case "start":
		err = h.ctrl.Start(r.Context())
	case "stop":
		h.ctrl.Stop()
	case "toggle":
		err = h.ctrl.Toggle(r.Context())
	default:
		writeError(w, http.StatusNotFound, "Unknown webcam action")
		return
	}

	if err != nil {
		// The controller already logged the cause.
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toWebcamResponse(h.ctrl.Snapshot()))
}
