package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/overlay"
	"github.com/ayusman/shoplens/internal/store"
)

// Bounds accepted by PUT /api/settings.
const (
	MinPollInterval  = 50 * time.Millisecond
	MaxPollInterval  = time.Minute
	MaxDetectionsCap = 100
)

// SettingsHandler reads and updates the persisted operator settings.
type SettingsHandler struct {
	store    *store.Store
	defaults store.Settings
	onChange func(store.Settings)
	logger   *zap.SugaredLogger
}

// NewSettingsHandler creates a new SettingsHandler. defaults fill in keys that
// were never stored; onChange receives the effective settings after every update.
func NewSettingsHandler(s *store.Store, defaults store.Settings, onChange func(store.Settings), logger *zap.SugaredLogger) *SettingsHandler {
	if onChange == nil {
		onChange = func(store.Settings) {}
	}
	return &SettingsHandler{
		store:    s,
		defaults: defaults,
		onChange: onChange,
		logger:   logging.OrNop(logger),
	}
}

type settingsBody struct {
	SearchURL      string  `json:"search_url"`
	PollIntervalMS int64   `json:"poll_interval_ms"`
	MinScore       float64 `json:"min_score"`
	MaxDetections  int     `json:"max_detections"`
}

func toSettingsBody(s store.Settings) settingsBody {
	return settingsBody{
		SearchURL:      s.SearchURL,
		PollIntervalMS: s.PollInterval.Milliseconds(),
		MinScore:       s.MinScore,
		MaxDetections:  s.MaxDetections,
	}
}

// settingsUpdate is a PUT body. Absent fields keep their current value;
// keys listed in Reset fall back to the configured default.
type settingsUpdate struct {
	SearchURL      *string  `json:"search_url"`
	PollIntervalMS *int64   `json:"poll_interval_ms"`
	MinScore       *float64 `json:"min_score"`
	MaxDetections  *int     `json:"max_detections"`
	Reset          []string `json:"reset"`
}

func (u settingsUpdate) overrides() store.Overrides {
	o := store.Overrides{
		SearchURL:     u.SearchURL,
		MinScore:      u.MinScore,
		MaxDetections: u.MaxDetections,
	}
	if u.PollIntervalMS != nil {
		d := time.Duration(*u.PollIntervalMS) * time.Millisecond
		o.PollInterval = &d
	}
	return o
}

// ServeHTTP handles GET and PUT /api/settings.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w)
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) effective() (store.Settings, error) {
	stored, err := h.store.Settings().Load()
	if err != nil {
		return store.Settings{}, err
	}
	return stored.Apply(h.defaults), nil
}

func (h *SettingsHandler) get(w http.ResponseWriter) {
	s, err := h.effective()
	if err != nil {
		h.logger.Errorf("Failed to load settings: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsBody(s))
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var body settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if msg := validateSettings(body); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Settings().Save(body.overrides(), body.Reset...); err != nil {
		h.logger.Errorf("Failed to save settings: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	s, err := h.effective()
	if err != nil {
		h.logger.Errorf("Failed to load settings: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	h.onChange(s)
	h.logger.Infof("Settings updated: %+v", toSettingsBody(s))
	writeJSON(w, http.StatusOK, toSettingsBody(s))
}

// validateSettings returns a user-facing message for the first invalid field.
func validateSettings(u settingsUpdate) string {
	if u.SearchURL != nil {
		if err := overlay.ValidateTemplate(*u.SearchURL); err != nil {
			return err.Error()
		}
	}
	if u.PollIntervalMS != nil {
		d := time.Duration(*u.PollIntervalMS) * time.Millisecond
		if d < MinPollInterval || d > MaxPollInterval {
			return "poll_interval_ms must be between 50 and 60000"
		}
	}
	if u.MinScore != nil && (*u.MinScore < 0 || *u.MinScore > 1) {
		return "min_score must be between 0 and 1"
	}
	if u.MaxDetections != nil && (*u.MaxDetections < 1 || *u.MaxDetections > MaxDetectionsCap) {
		return "max_detections must be between 1 and 100"
	}
	for _, k := range u.Reset {
		if !store.IsKey(k) {
			return "unknown setting in reset: " + k
		}
	}
	return ""
}
