package detector

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

const epsilon = 1e-4

func TestParseSSDOutput(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("converts normalized rows to pixel boxes", func(t *testing.T) {
		values := []float32{
			0, 47, 0.87, 0.1, 0.2, 0.6, 0.8,
		}

		got := parseSSDOutput(values, 100, 100, cfg)

		if len(got) != 1 {
			t.Fatalf("expected 1 detection, got %d", len(got))
		}
		d := got[0]
		if d.Class != "cup" {
			t.Errorf("Class = %q, want cup", d.Class)
		}
		if math.Abs(d.Score-0.87) > epsilon {
			t.Errorf("Score = %f, want 0.87", d.Score)
		}
		want := BBox{X: 10, Y: 20, Width: 50, Height: 60}
		if math.Abs(d.BBox.X-want.X) > epsilon || math.Abs(d.BBox.Y-want.Y) > epsilon ||
			math.Abs(d.BBox.Width-want.Width) > epsilon || math.Abs(d.BBox.Height-want.Height) > epsilon {
			t.Errorf("BBox = %+v, want %+v", d.BBox, want)
		}
	})

	t.Run("drops low scores and unknown classes", func(t *testing.T) {
		values := []float32{
			0, 1, 0.30, 0.1, 0.1, 0.2, 0.2, // below threshold
			0, 12, 0.90, 0.1, 0.1, 0.2, 0.2, // id 12 unused in COCO
			0, 18, 0.75, 0.1, 0.1, 0.2, 0.2,
		}

		got := parseSSDOutput(values, 640, 480, cfg)

		if len(got) != 1 || got[0].Class != "dog" {
			t.Fatalf("expected only dog, got %+v", got)
		}
	})

	t.Run("sorts by score and caps the count", func(t *testing.T) {
		capped := cfg
		capped.MaxDetections = 2
		values := []float32{
			0, 1, 0.60, 0.0, 0.0, 0.1, 0.1,
			0, 44, 0.95, 0.0, 0.0, 0.1, 0.1,
			0, 47, 0.80, 0.0, 0.0, 0.1, 0.1,
		}

		got := parseSSDOutput(values, 640, 480, capped)

		if len(got) != 2 {
			t.Fatalf("expected 2 detections, got %d", len(got))
		}
		if got[0].Class != "bottle" || got[1].Class != "cup" {
			t.Errorf("unexpected order: %s, %s", got[0].Class, got[1].Class)
		}
	})

	t.Run("clips boxes to the frame and drops degenerate ones", func(t *testing.T) {
		values := []float32{
			0, 1, 0.9, -0.5, -0.5, 1.5, 0.5,
			0, 3, 0.9, 0.5, 0.5, 0.5, 0.9, // zero width
		}

		got := parseSSDOutput(values, 200, 100, cfg)

		if len(got) != 1 {
			t.Fatalf("expected 1 detection, got %d", len(got))
		}
		b := got[0].BBox
		if b.X != 0 || b.Y != 0 || b.Width != 200 || b.Height != 50 {
			t.Errorf("BBox = %+v, want {0 0 200 50}", b)
		}
	})

	t.Run("ignores a trailing partial row", func(t *testing.T) {
		values := []float32{0, 1, 0.9, 0.1}

		if got := parseSSDOutput(values, 640, 480, cfg); len(got) != 0 {
			t.Errorf("expected no detections, got %+v", got)
		}
	})
}

func TestClassLabel(t *testing.T) {
	tests := []struct {
		id     int
		want   string
		wantOK bool
	}{
		{1, "person", true},
		{47, "cup", true},
		{90, "toothbrush", true},
		{12, "", false},
		{0, "", false},
		{91, "", false},
	}

	for _, tt := range tests {
		got, ok := ClassLabel(tt.id)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ClassLabel(%d) = (%q, %v), want (%q, %v)", tt.id, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSSDDetector_MissingModel(t *testing.T) {
	dir := t.TempDir()
	d := NewSSDDetector(Config{
		ModelPath:  filepath.Join(dir, "missing.pb"),
		ConfigPath: filepath.Join(dir, "missing.pbtxt"),
	})
	defer d.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, err := d.Detect(context.Background(), &frame)
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("Detect() error = %v, want ErrModelNotLoaded", err)
	}
	if d.Loaded() {
		t.Error("detector should not report loaded after a failed load")
	}
}

func TestSSDDetector_EmptyFrame(t *testing.T) {
	d := NewSSDDetector(DefaultConfig())

	if _, err := d.Detect(context.Background(), nil); err == nil {
		t.Error("expected error for nil frame")
	}
}

func TestSSDDetector_CancelledContext(t *testing.T) {
	d := NewSSDDetector(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if _, err := d.Detect(ctx, &frame); !errors.Is(err, context.Canceled) {
		t.Errorf("Detect() error = %v, want context.Canceled", err)
	}
}

func TestNewSSDDetector_Defaults(t *testing.T) {
	d := NewSSDDetector(Config{})

	if d.config.MinScore != 0.5 {
		t.Errorf("MinScore = %f, want 0.5", d.config.MinScore)
	}
	if d.config.MaxDetections != 20 {
		t.Errorf("MaxDetections = %d, want 20", d.config.MaxDetections)
	}
	if d.config.InputSize != 300 {
		t.Errorf("InputSize = %d, want 300", d.config.InputSize)
	}
}

func TestSSDDetector_SetLimits(t *testing.T) {
	d := NewSSDDetector(DefaultConfig())
	values := []float32{
		0, 47, 0.4, 0.1, 0.1, 0.3, 0.3,
		0, 44, 0.9, 0.5, 0.5, 0.7, 0.7,
	}

	if got := parseSSDOutput(values, 100, 100, d.config); len(got) != 1 {
		t.Fatalf("with default limits got %d detections, want 1", len(got))
	}

	d.SetLimits(0.3, 50)
	minScore, max := d.Limits()
	if minScore != 0.3 || max != 50 {
		t.Fatalf("Limits() = (%v, %d), want (0.3, 50)", minScore, max)
	}

	got := parseSSDOutput(values, 100, 100, d.config)
	if len(got) != 2 {
		t.Fatalf("after lowering min score got %d detections, want 2", len(got))
	}
	if got[1].Class != "cup" {
		t.Errorf("second detection = %q, want the 0.4 cup", got[1].Class)
	}

	d.SetLimits(0, 1)
	if got := parseSSDOutput(values, 100, 100, d.config); len(got) != 1 || got[0].Class != "bottle" {
		t.Errorf("with cap 1 got %+v, want only the bottle", got)
	}

	d.SetLimits(-1, -1)
	if minScore, max := d.Limits(); minScore != 0 || max != 0 {
		t.Errorf("negative limits = (%v, %d), want (0, 0)", minScore, max)
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty detections by default", func(t *testing.T) {
		mock := NewMockDetector()

		got, err := mock.Detect(context.Background(), nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no detections, got %v", got)
		}
	})

	t.Run("returns configured detections", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetDetections([]Detection{CupDetection()})

		got, err := mock.Detect(context.Background(), nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Class != "cup" {
			t.Errorf("expected one cup, got %v", got)
		}
		if mock.Calls() != 1 {
			t.Errorf("Calls() = %d, want 1", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		got, err := mock.Detect(context.Background(), nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if got != nil {
			t.Errorf("expected nil detections when error is set, got %v", got)
		}
	})

	t.Run("block holds calls until release", func(t *testing.T) {
		mock := NewMockDetector()
		mock.Block()

		done := make(chan struct{})
		go func() {
			mock.Detect(context.Background(), nil)
			close(done)
		}()

		<-mock.Started()
		select {
		case <-done:
			t.Fatal("Detect returned while blocked")
		default:
		}

		mock.Release()
		<-done
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*SSDDetector)(nil)
	})
}

func TestNewScoreFilter(t *testing.T) {
	in := []Detection{
		{Class: "cup", Score: 0.87},
		{Class: "book", Score: 0.41},
		{Class: "tv", Score: 0.6},
	}

	got := NewScoreFilter(0.6)(in)

	if len(got) != 2 || got[0].Class != "cup" || got[1].Class != "tv" {
		t.Errorf("filtered = %+v, want cup and tv", got)
	}
	if len(in) != 3 {
		t.Error("filter must not modify its input")
	}
}

func TestChain(t *testing.T) {
	in := []Detection{
		{Class: "tv", Score: 0.95},
		{Class: "cup", Score: 0.87},
		{Class: "book", Score: 0.3},
		{Class: "chair", Score: 0.6},
	}

	got := Chain(NewScoreFilter(0.5), nil, NewMaxFilter(2))(in)

	if len(got) != 2 || got[0].Class != "tv" || got[1].Class != "cup" {
		t.Errorf("chained = %+v, want tv and cup", got)
	}
	if got := NewMaxFilter(10)(in); len(got) != 4 {
		t.Errorf("NewMaxFilter(10) kept %d, want 4", len(got))
	}
}
