package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// ssdRowSize is the width of one SSD output row:
// [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized.
const ssdRowSize = 7

// SSDDetector runs an SSD-MobileNet COCO network through the OpenCV DNN module.
// The network is loaded lazily on the first Detect call and reused afterwards.
type SSDDetector struct {
	config Config
	net    gocv.Net
	loaded bool
	mu     sync.Mutex
}

// NewSSDDetector creates a detector. No files are touched until the first Detect.
func NewSSDDetector(config Config) *SSDDetector {
	defaults := DefaultConfig()
	if config.MinScore <= 0 {
		config.MinScore = defaults.MinScore
	}
	if config.MaxDetections <= 0 {
		config.MaxDetections = defaults.MaxDetections
	}
	if config.InputSize <= 0 {
		config.InputSize = defaults.InputSize
	}
	return &SSDDetector{config: config}
}

// Detect runs the network on frame and returns detections sorted by score.
func (d *SSDDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(*frame, 1.0/127.5, image.Pt(size, size), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Forward cannot be interrupted; drop the result if the caller gave up meanwhile.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read network output: %w", err)
	}

	return parseSSDOutput(values, frame.Cols(), frame.Rows(), d.config), nil
}

// SetLimits changes the score threshold and box cap used from the next
// Detect call on. A negative minScore is treated as 0; maxDetections <= 0
// removes the cap.
func (d *SSDDetector) SetLimits(minScore float64, maxDetections int) {
	if minScore < 0 {
		minScore = 0
	}
	if maxDetections < 0 {
		maxDetections = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.MinScore = minScore
	d.config.MaxDetections = maxDetections
}

// Limits returns the current score threshold and box cap.
func (d *SSDDetector) Limits() (minScore float64, maxDetections int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.MinScore, d.config.MaxDetections
}

// Close releases the network.
func (d *SSDDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}

// Loaded reports whether the network has been loaded.
func (d *SSDDetector) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *SSDDetector) ensureLoaded() error {
	if d.loaded {
		return nil
	}

	if _, err := os.Stat(d.config.ModelPath); err != nil {
		return fmt.Errorf("%w: model file %s: %v", ErrModelNotLoaded, d.config.ModelPath, err)
	}
	if _, err := os.Stat(d.config.ConfigPath); err != nil {
		return fmt.Errorf("%w: config file %s: %v", ErrModelNotLoaded, d.config.ConfigPath, err)
	}

	net := gocv.ReadNet(d.config.ModelPath, d.config.ConfigPath)
	if net.Empty() {
		return fmt.Errorf("%w: failed to read network", ErrModelNotLoaded)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return fmt.Errorf("set target: %w", err)
	}

	d.net = net
	d.loaded = true
	return nil
}

// parseSSDOutput converts raw SSD rows into pixel-space detections.
// Rows below MinScore or with unknown class ids are dropped, boxes are
// clipped to the frame, and at most MaxDetections are kept (highest score first).
func parseSSDOutput(values []float32, frameWidth, frameHeight int, cfg Config) []Detection {
	w := float64(frameWidth)
	h := float64(frameHeight)

	results := make([]Detection, 0)
	for i := 0; i+ssdRowSize <= len(values); i += ssdRowSize {
		score := float64(values[i+2])
		if score < cfg.MinScore {
			continue
		}

		label, ok := ClassLabel(int(values[i+1]))
		if !ok {
			continue
		}

		x1 := clamp(float64(values[i+3]), 0, 1) * w
		y1 := clamp(float64(values[i+4]), 0, 1) * h
		x2 := clamp(float64(values[i+5]), 0, 1) * w
		y2 := clamp(float64(values[i+6]), 0, 1) * h
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		results = append(results, Detection{
			Class: label,
			Score: score,
			BBox:  BBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if cfg.MaxDetections > 0 && len(results) > cfg.MaxDetections {
		results = results[:cfg.MaxDetections]
	}

	return results
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
