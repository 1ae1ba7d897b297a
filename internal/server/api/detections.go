package api

import (
	"net/http"
	"time"

	"github.com/ayusman/shoplens/internal/detector"
	"github.com/ayusman/shoplens/internal/overlay"
	"github.com/ayusman/shoplens/internal/session"
)

// DetectionsHandler serves the latest detection list and its rendered overlay.
type DetectionsHandler struct {
	webcam   Webcam
	template TemplateFunc
}

// NewDetectionsHandler creates a new DetectionsHandler.
func NewDetectionsHandler(webcam Webcam, template TemplateFunc) *DetectionsHandler {
	return &DetectionsHandler{webcam: webcam, template: template}
}

// OverlayResponse is the overlay payload shared by the REST and websocket endpoints.
type OverlayResponse struct {
	Active     bool                 `json:"active"`
	SessionID  string               `json:"session_id,omitempty"`
	UpdatedAt  string               `json:"updated_at,omitempty"`
	Detections []detector.Detection `json:"detections"`
	Markers    []overlay.Marker     `json:"markers"`
}

// NewOverlayResponse renders a snapshot with the given search template.
func NewOverlayResponse(s session.Snapshot, template string) OverlayResponse {
	resp := OverlayResponse{
		Active:     s.Active(),
		SessionID:  s.SessionID,
		Detections: s.Detections,
		Markers:    overlay.Render(s.Detections, template),
	}
	if resp.Detections == nil {
		resp.Detections = []detector.Detection{}
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.Format(time.RFC3339Nano)
	}
	return resp
}

// ServeHTTP handles GET /api/detections.
func (h *DetectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, NewOverlayResponse(h.webcam.Snapshot(), h.template()))
}
