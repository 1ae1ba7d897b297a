// Package server provides the HTTP server for the shoplens webcam service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/overlay"
	"github.com/ayusman/shoplens/internal/server/api"
	"github.com/ayusman/shoplens/internal/store"
)

// Config holds the server configuration. Every component is optional; routes
// are only registered for the components that are set.
type Config struct {
	StaticDir string
	Store     *store.Store
	Webcam    api.Webcam
	Stream    *StreamHandler
	Hub       *OverlayHub

	// SearchTemplate returns the current search URL template.
	SearchTemplate api.TemplateFunc
	// Defaults are reported for settings that were never stored.
	Defaults   store.Settings
	OnSettings func(store.Settings)

	Logger *zap.SugaredLogger
}

// Server represents the HTTP server for the shoplens application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *zap.SugaredLogger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.SearchTemplate == nil {
		config.SearchTemplate = func() string { return overlay.DefaultSearchURL }
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logging.OrNop(config.Logger),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/search", api.NewSearchHandler(s.config.SearchTemplate))

	if s.config.Webcam != nil {
		webcamHandler := api.NewWebcamHandler(s.config.Webcam, s.logger)
		s.mux.Handle("/api/webcam", webcamHandler)
		s.mux.Handle("/api/webcam/", webcamHandler)
		s.mux.Handle("/api/detections", api.NewDetectionsHandler(s.config.Webcam, s.config.SearchTemplate))
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Store, s.config.Defaults, s.config.OnSettings, s.logger))
	}

	if s.config.Stream != nil {
		s.mux.Handle("/api/stream", s.config.Stream)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/overlay", s.config.Hub)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.Webcam != nil {
		response["webcam"] = string(s.config.Webcam.Snapshot().State)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// MJPEG streams never finish on their own.
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	srv.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
