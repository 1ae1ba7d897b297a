// Package detector wraps the pretrained object-detection model used by the poller.
package detector

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

// ErrModelNotLoaded is returned when the model files cannot be loaded.
var ErrModelNotLoaded = errors.New("detection model not loaded")

// BBox is a bounding box in pixel coordinates relative to the video frame.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one model output: class label, confidence in [0,1] and box.
type Detection struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	BBox  BBox    `json:"bbox"`
}

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Detect runs the model on a video frame and returns the detected objects.
	// Returns an empty slice if nothing is detected.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for object detection.
type Config struct {
	// ModelPath is the frozen TensorFlow graph (frozen_inference_graph.pb).
	ModelPath string

	// ConfigPath is the matching text graph (.pbtxt).
	ConfigPath string

	// MinScore drops detections below this confidence (0.0-1.0).
	MinScore float64

	// MaxDetections caps the number of boxes returned per frame.
	MaxDetections int

	// InputSize is the square blob size fed to the network.
	InputSize int
}

// DefaultConfig returns a Config matching the COCO-SSD defaults.
func DefaultConfig() Config {
	return Config{
		MinScore:      0.5,
		MaxDetections: 20,
		InputSize:     300,
	}
}

// Filter modifies or drops detections after inference.
type Filter func([]Detection) []Detection

// NewScoreFilter returns a Filter that drops detections below minScore.
func NewScoreFilter(minScore float64) Filter {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Score >= minScore {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewMaxFilter returns a Filter that keeps at most n detections.
func NewMaxFilter(n int) Filter {
	return func(in []Detection) []Detection {
		if len(in) <= n {
			return in
		}
		return in[:n]
	}
}

// Chain applies filters in order. Nil filters are skipped.
func Chain(filters ...Filter) Filter {
	return func(in []Detection) []Detection {
		for _, f := range filters {
			if f != nil {
				in = f(in)
			}
		}
		return in
	}
}
