// Package api provides HTTP API handlers for the shoplens webcam service.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ayusman/shoplens/internal/session"
)

// Webcam is the session surface the handlers drive. *session.Controller satisfies it.
type Webcam interface {
	Start(ctx context.Context) error
	Stop()
	Toggle(ctx context.Context) error
	Snapshot() session.Snapshot
}

// TemplateFunc returns the current search URL template.
type TemplateFunc func() string

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
