package api

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/shoplens/internal/detector"
	"github.com/ayusman/shoplens/internal/session"
	"github.com/ayusman/shoplens/internal/store"
)

// fakeWebcam is a Webcam whose state tests set directly.
type fakeWebcam struct {
	mu       sync.Mutex
	snap     session.Snapshot
	startErr error
	starts   int
	stops    int
}

func newFakeWebcam() *fakeWebcam {
	return &fakeWebcam{snap: session.Snapshot{State: session.Inactive}}
}

func (f *fakeWebcam) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		f.snap = session.Snapshot{State: session.Inactive, LastError: f.startErr.Error()}
		return f.startErr
	}
	f.snap = session.Snapshot{State: session.Active, SessionID: "s-1", StartedAt: time.Unix(100, 0)}
	return nil
}

func (f *fakeWebcam) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.snap = session.Snapshot{State: session.Inactive}
}

func (f *fakeWebcam) Toggle(ctx context.Context) error {
	if f.Snapshot().Active() {
		f.Stop()
		return nil
	}
	return f.Start(ctx)
}

func (f *fakeWebcam) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeWebcam) setDetections(dets []detector.Detection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Detections = dets
	f.snap.UpdatedAt = time.Unix(200, 0)
}

var errDenied = errors.New("camera unavailable: permission denied")

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func staticTemplate(tmpl string) TemplateFunc {
	return func() string { return tmpl }
}
