package session

import (
	"time"

	"github.com/ayusman/shoplens/internal/detector"
	"github.com/ayusman/shoplens/internal/poller"
)

// State is the webcam session state.
type State string

const (
	Inactive State = "inactive"
	Active   State = "active"
)

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	State      State                `json:"state"`
	SessionID  string               `json:"session_id,omitempty"`
	StartedAt  time.Time            `json:"started_at,omitempty"`
	Detections []detector.Detection `json:"detections"`
	UpdatedAt  time.Time            `json:"updated_at,omitempty"`
	LastError  string               `json:"last_error,omitempty"`
	Stats      poller.Stats         `json:"stats"`
}

// Active reports whether the snapshot was taken during an active session.
func (s Snapshot) Active() bool {
	return s.State == Active
}

type eventKind int

const (
	evStarted eventKind = iota
	evStartFailed
	evStopped
	evDetections
	evDetectFailed
)

// event is the only way to change controller state; see Controller.apply.
type event struct {
	kind       eventKind
	sessionID  string
	at         time.Time
	detections []detector.Detection
	err        error
	poller     *poller.Poller
}

// state is owned by the Controller and guarded by its mutex.
type state struct {
	current    State
	sessionID  string
	startedAt  time.Time
	detections []detector.Detection
	updatedAt  time.Time
	lastErr    error
	poller     *poller.Poller
}
