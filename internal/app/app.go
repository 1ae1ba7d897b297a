// Package app wires the shoplens components together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/shoplens/internal/capture"
	"github.com/ayusman/shoplens/internal/config"
	"github.com/ayusman/shoplens/internal/detector"
	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/overlay"
	"github.com/ayusman/shoplens/internal/server"
	"github.com/ayusman/shoplens/internal/session"
	"github.com/ayusman/shoplens/internal/store"
)

// Options holds what New needs. Camera, Detector and Clock override the
// hardware-backed defaults.
type Options struct {
	Config   *config.Config
	Camera   capture.Camera
	Detector detector.Detector
	Clock    clock.Clock
	Logger   *zap.SugaredLogger
}

// App owns the settings store, the webcam session and the HTTP server.
type App struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	store    *store.Store
	camera   capture.Camera
	detector detector.Detector
	stream   *server.StreamHandler
	hub      *server.OverlayHub
	ctrl     *session.Controller
	server   *server.Server

	mu       sync.RWMutex
	settings store.Settings

	closeOnce sync.Once
	closeErr  error
}

// New opens the settings store, applies stored overrides on top of cfg and
// builds every component. Nothing touches the camera until a session starts.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.FromEnv()
	}
	logger := logging.OrNop(opts.Logger)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	defaults := Defaults(cfg)
	stored, err := st.Settings().Load()
	if err != nil {
		logger.Warnf("Ignoring stored settings: %v", err)
		stored = store.Overrides{}
	}
	effective := stored.Apply(defaults)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		camera:   opts.Camera,
		detector: opts.Detector,
		settings: effective,
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(cfg.CameraID)
	}
	if cfg.CameraFPS > 0 {
		a.camera.SetFPS(cfg.CameraFPS)
	}
	if a.detector == nil {
		dcfg := detector.DefaultConfig()
		dcfg.ModelPath = cfg.ModelPath
		dcfg.ConfigPath = cfg.ModelConfigPath
		a.detector = detector.NewSSDDetector(dcfg)
	}
	a.setDetectorLimits(effective)

	a.stream = server.NewStreamHandler(a.Markers, logger.Named("stream"))
	a.ctrl = session.NewController(session.Config{
		Camera:        a.camera,
		Detector:      a.detector,
		Sink:          a.stream,
		Interval:      effective.PollInterval,
		MinScore:      effective.MinScore,
		MaxDetections: effective.MaxDetections,
		Clock:         opts.Clock,
		Logger:        logger.Named("session"),
	})
	a.hub = server.NewOverlayHub(a.ctrl.Snapshot, a.SearchTemplate, logger.Named("overlay"))
	a.ctrl.Subscribe(a.hub.Publish)

	a.server = server.New(server.Config{
		StaticDir:      cfg.WebDir,
		Store:          st,
		Webcam:         a.ctrl,
		Stream:         a.stream,
		Hub:            a.hub,
		SearchTemplate: a.SearchTemplate,
		Defaults:       defaults,
		OnSettings:     a.ApplySettings,
		Logger:         logger.Named("http"),
	})

	logger.Infof("Settings: search %s, poll every %s, min score %.2f, max %d detections",
		effective.SearchURL, effective.PollInterval, effective.MinScore, effective.MaxDetections)
	return a, nil
}

// Defaults returns the settings implied by cfg alone.
func Defaults(cfg *config.Config) store.Settings {
	return store.Settings{
		SearchURL:     cfg.SearchURL,
		PollInterval:  cfg.PollInterval,
		MinScore:      cfg.MinScore,
		MaxDetections: cfg.MaxDetections,
	}
}

// ApplySettings makes s the effective settings. The poll interval takes
// effect from the next session.
func (a *App) ApplySettings(s store.Settings) {
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()

	a.ctrl.SetInterval(s.PollInterval)
	a.ctrl.SetLimits(s.MinScore, s.MaxDetections)
	a.setDetectorLimits(s)
}

// limitSetter is implemented by detectors that filter their own output.
type limitSetter interface {
	SetLimits(minScore float64, maxDetections int)
}

func (a *App) setDetectorLimits(s store.Settings) {
	if d, ok := a.detector.(limitSetter); ok {
		d.SetLimits(s.MinScore, s.MaxDetections)
	}
}

// Settings returns the effective settings.
func (a *App) Settings() store.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// SearchTemplate returns the effective search URL template.
func (a *App) SearchTemplate() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.settings.SearchURL == "" {
		return overlay.DefaultSearchURL
	}
	return a.settings.SearchURL
}

// Markers renders the current detections.
func (a *App) Markers() []overlay.Marker {
	return overlay.Render(a.ctrl.Snapshot().Detections, a.SearchTemplate())
}

// Controller returns the webcam session controller.
func (a *App) Controller() *session.Controller {
	return a.ctrl
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server
}

// Run serves HTTP on the configured address until ctx is cancelled.
// The webcam session is stopped on return.
func (a *App) Run(ctx context.Context) error {
	defer a.ctrl.Stop()
	return a.server.Run(ctx, a.cfg.Addr)
}

// Close stops the session and releases the detector and the store.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.ctrl.Stop()
		a.closeErr = multierr.Combine(
			a.detector.Close(),
			a.store.Close(),
		)
	})
	return a.closeErr
}
