package tray

import (
	"testing"

	"github.com/ayusman/shoplens/internal/detector"
	"github.com/ayusman/shoplens/internal/session"
)

func TestSeenTitle(t *testing.T) {
	tests := []struct {
		name    string
		classes []string
		want    string
	}{
		{"none", nil, "Seen: nothing"},
		{"one", []string{"cup"}, "Seen: cup"},
		{"sorted with counts", []string{"tv", "cup", "tv"}, "Seen: cup, tv (x2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seenTitle(tt.classes); got != tt.want {
				t.Errorf("seenTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToggleTitle(t *testing.T) {
	if got := toggleTitle(false); got != "Start Webcam" {
		t.Errorf("inactive title = %q", got)
	}
	if got := toggleTitle(true); got != "Stop Webcam" {
		t.Errorf("active title = %q", got)
	}
}

// Update must work before the menu exists.
func TestUpdate_BeforeRun(t *testing.T) {
	tr := New()

	tr.Update(session.Snapshot{
		State:      session.Active,
		Detections: []detector.Detection{detector.CupDetection()},
	})

	if !tr.IsActive() {
		t.Error("IsActive() = false after an active snapshot")
	}
	if tr.Seen() != "Seen: cup" {
		t.Errorf("Seen() = %q", tr.Seen())
	}

	tr.Update(session.Snapshot{State: session.Inactive})
	if tr.IsActive() || tr.Seen() != "Seen: nothing" {
		t.Errorf("after stop: active = %v seen = %q", tr.IsActive(), tr.Seen())
	}
}

func TestCall_NilCallback(t *testing.T) {
	tr := New()
	tr.call(func() func() { return tr.onToggle })

	called := false
	tr.OnToggle(func() { called = true })
	tr.call(func() func() { return tr.onToggle })
	if !called {
		t.Error("toggle callback was not called")
	}
}
