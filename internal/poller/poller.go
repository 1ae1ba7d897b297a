// Package poller runs the detection model against the live camera on a fixed period.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/shoplens/internal/detector"
	"github.com/ayusman/shoplens/internal/logging"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// ErrAlreadyRunning is returned by Start when the poller is already active.
var ErrAlreadyRunning = errors.New("poller already running")

// FrameSource supplies the current video frame. capture.Camera satisfies it.
type FrameSource interface {
	ReadFrame() (*gocv.Mat, error)
}

// Result is the outcome of one poll. Exactly one of Detections or Err is meaningful.
type Result struct {
	Detections []detector.Detection
	Err        error
	Latency    time.Duration
}

// Handler receives every poll result produced while the poller is running.
type Handler func(Result)

// Stats are cumulative counters since the poller was created.
type Stats struct {
	Ticks       uint64        `json:"ticks"`
	Runs        uint64        `json:"runs"`
	Skipped     uint64        `json:"skipped"`
	Failures    uint64        `json:"failures"`
	LastLatency time.Duration `json:"last_latency_ns"`
}

// Config holds poller options. Zero values fall back to defaults.
type Config struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *zap.SugaredLogger
}

// Poller fires on a fixed period and submits the current frame to the detector.
// A tick that arrives while the previous inference is still running is skipped.
// Results of an inference that finishes after Stop are discarded.
type Poller struct {
	source   FrameSource
	detector detector.Detector
	handler  Handler
	interval time.Duration
	clock    clock.Clock
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inFlight    atomic.Bool
	ticks       atomic.Uint64
	runs        atomic.Uint64
	skipped     atomic.Uint64
	failures    atomic.Uint64
	lastLatency atomic.Int64
	wg          sync.WaitGroup
}

// New creates a stopped Poller.
func New(source FrameSource, det detector.Detector, handler Handler, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if handler == nil {
		handler = func(Result) {}
	}

	return &Poller{
		source:   source,
		detector: det,
		handler:  handler,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   logging.OrNop(cfg.Logger),
	}
}

// Start begins polling. The ticker is armed before Start returns.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := p.clock.Ticker(p.interval)
	done := make(chan struct{})

	p.cancel = cancel
	p.done = done

	go p.run(ctx, ticker, done)

	p.logger.Debugf("Poller started (interval %s)", p.interval)
	return nil
}

// Stop cancels the timer and waits for the tick loop to exit. It does not
// wait for an in-flight inference; that result is dropped when it arrives.
// Stopping a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	p.logger.Debugf("Poller stopped")
}

// Running reports whether the tick loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Wait blocks until no inference is in flight.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Stats returns a snapshot of the poller counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Ticks:       p.ticks.Load(),
		Runs:        p.runs.Load(),
		Skipped:     p.skipped.Load(),
		Failures:    p.failures.Load(),
		LastLatency: time.Duration(p.lastLatency.Load()),
	}
}

func (p *Poller) run(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.ticks.Add(1)

	if ctx.Err() != nil {
		return
	}

	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debugf("Previous inference still running, skipping tick")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		p.poll(ctx)
	}()
}

// poll reads one frame and runs the detector on it.
func (p *Poller) poll(ctx context.Context) {
	p.runs.Add(1)
	start := p.clock.Now()

	detections, err := p.detect(ctx)

	latency := p.clock.Since(start)
	p.lastLatency.Store(int64(latency))

	if ctx.Err() != nil {
		// Stopped while the model was running.
		return
	}

	if err != nil {
		p.failures.Add(1)
		p.logger.Errorf("Error detecting objects: %v", err)
		p.handler(Result{Err: err, Latency: latency})
		return
	}

	p.handler(Result{Detections: detections, Latency: latency})
}

func (p *Poller) detect(ctx context.Context) ([]detector.Detection, error) {
	frame, err := p.source.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	return p.detector.Detect(ctx, frame)
}
