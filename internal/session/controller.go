// Package session owns the webcam session: it starts and stops the camera,
// drives the detection poller, and holds the latest detection list.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/shoplens/internal/capture"
	"github.com/ayusman/shoplens/internal/detector"
	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/poller"
)

// Sink is where the live camera stream is shown while a session is active.
type Sink interface {
	Attach(cam capture.Camera)
	Detach()
}

// Listener is called after every state change. Listeners run on the goroutine
// that caused the change and must not call Start, Stop or Toggle.
type Listener func(Snapshot)

// Config holds controller dependencies. Camera and Detector are required.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Sink     Sink
	Interval time.Duration

	// MinScore and MaxDetections further restrict what the detector returns.
	MinScore      float64
	MaxDetections int
	Clock         clock.Clock
	Logger        *zap.SugaredLogger
}

// Controller implements the Inactive/Active webcam state machine.
type Controller struct {
	camera   capture.Camera
	detector detector.Detector
	sink     Sink
	clock    clock.Clock
	logger   *zap.SugaredLogger

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	mu       sync.Mutex
	st       state
	interval time.Duration
	filter   detector.Filter

	notifyMu  sync.Mutex
	listenMu  sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewController creates an inactive Controller.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = poller.DefaultInterval
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}

	c := &Controller{
		camera:    cfg.Camera,
		detector:  cfg.Detector,
		sink:      cfg.Sink,
		clock:     cfg.Clock,
		logger:    logging.OrNop(cfg.Logger),
		st:        state{current: Inactive},
		interval:  cfg.Interval,
		listeners: make(map[int]Listener),
	}
	c.filter = limits(cfg.MinScore, cfg.MaxDetections)
	return c
}

// Start opens the camera, attaches it to the sink and starts polling.
// If the camera cannot be opened the session stays inactive and the error
// is returned. Starting an active session is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.start(ctx)
}

func (c *Controller) start(ctx context.Context) error {
	if c.Snapshot().Active() {
		return nil
	}

	if err := c.camera.Open(); err != nil {
		c.logger.Errorf("Error accessing webcam: %v", err)
		c.dispatch(event{kind: evStartFailed, err: err, at: c.clock.Now()})
		return fmt.Errorf("start webcam: %w", err)
	}

	id := uuid.NewString()
	c.sink.Attach(c.camera)

	c.mu.Lock()
	interval := c.interval
	c.mu.Unlock()

	p := poller.New(c.camera, c.detector, c.resultHandler(id), poller.Config{
		Interval: interval,
		Clock:    c.clock,
		Logger:   c.logger.With("session", id),
	})

	c.dispatch(event{kind: evStarted, sessionID: id, poller: p, at: c.clock.Now()})

	// The session outlives the request that started it.
	if err := p.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	c.logger.Infof("Webcam session %s started (poll every %s)", id, interval)
	return nil
}

// Stop halts the poller and the camera and detaches the sink.
// Stopping an inactive session is a no-op.
func (c *Controller) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stop()
}

func (c *Controller) stop() {
	c.mu.Lock()
	if c.st.current != Active {
		c.mu.Unlock()
		return
	}
	id := c.st.sessionID
	p := c.st.poller
	c.mu.Unlock()

	// Mark inactive first so any result still in flight is rejected.
	c.dispatch(event{kind: evStopped, at: c.clock.Now()})

	if p != nil {
		p.Stop()
	}
	if err := c.camera.Close(); err != nil {
		c.logger.Warnf("Error closing webcam: %v", err)
	}
	c.sink.Detach()

	c.logger.Infof("Webcam session %s stopped", id)
}

// Toggle starts an inactive session and stops an active one.
func (c *Controller) Toggle(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Snapshot().Active() {
		c.stop()
		return nil
	}
	return c.start(ctx)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to be called after every state change.
// The returned function removes the registration.
func (c *Controller) Subscribe(fn Listener) func() {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.listenMu.Lock()
		defer c.listenMu.Unlock()
		delete(c.listeners, id)
	}
}

// SetInterval changes the poll period used by the next session.
func (c *Controller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = d
}

// SetLimits changes the minimum score and the maximum number of detections
// kept from each poll. Zero disables the respective limit.
func (c *Controller) SetLimits(minScore float64, maxDetections int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = limits(minScore, maxDetections)
}

func limits(minScore float64, maxDetections int) detector.Filter {
	var filters []detector.Filter
	if minScore > 0 {
		filters = append(filters, detector.NewScoreFilter(minScore))
	}
	if maxDetections > 0 {
		filters = append(filters, detector.NewMaxFilter(maxDetections))
	}
	if len(filters) == 0 {
		return nil
	}
	return detector.Chain(filters...)
}

func (c *Controller) resultHandler(id string) poller.Handler {
	return func(r poller.Result) {
		if r.Err != nil {
			c.dispatch(event{kind: evDetectFailed, sessionID: id, err: r.Err, at: c.clock.Now()})
			return
		}
		c.dispatch(event{kind: evDetections, sessionID: id, detections: r.Detections, at: c.clock.Now()})
	}
}

// dispatch applies ev and notifies listeners in the order events were applied.
func (c *Controller) dispatch(ev event) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	changed := c.apply(ev)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if !changed {
		return
	}

	c.listenMu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.listenMu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// apply is the single place controller state is written. It reports whether
// the state changed. c.mu must be held.
func (c *Controller) apply(ev event) bool {
	switch ev.kind {
	case evStarted:
		c.st = state{
			current:   Active,
			sessionID: ev.sessionID,
			startedAt: ev.at,
			poller:    ev.poller,
		}
		return true

	case evStartFailed:
		c.st = state{current: Inactive, lastErr: ev.err}
		return true

	case evStopped:
		if c.st.current != Active {
			return false
		}
		c.st = state{current: Inactive, lastErr: c.st.lastErr}
		return true

	case evDetections:
		if !c.current(ev.sessionID) {
			c.logger.Debugf("Dropping detections from stale session %s", ev.sessionID)
			return false
		}
		dets := ev.detections
		if c.filter != nil {
			dets = c.filter(dets)
		}
		c.st.detections = dets
		c.st.updatedAt = ev.at
		c.st.lastErr = nil
		return true

	case evDetectFailed:
		if !c.current(ev.sessionID) {
			return false
		}
		// Previous detections stay in place.
		c.st.lastErr = ev.err
		return true
	}
	return false
}

func (c *Controller) current(sessionID string) bool {
	return c.st.current == Active && c.st.sessionID == sessionID
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      c.st.current,
		SessionID:  c.st.sessionID,
		StartedAt:  c.st.startedAt,
		UpdatedAt:  c.st.updatedAt,
		Detections: make([]detector.Detection, len(c.st.detections)),
	}
	copy(snap.Detections, c.st.detections)
	if c.st.lastErr != nil {
		snap.LastError = c.st.lastErr.Error()
	}
	if c.st.poller != nil {
		snap.Stats = c.st.poller.Stats()
	}
	return snap
}

type nopSink struct{}

func (nopSink) Attach(capture.Camera) {}
func (nopSink) Detach()               {}
