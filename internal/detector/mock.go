package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results and to hold calls
// open in order to simulate a slow model.
type MockDetector struct {
	mu          sync.Mutex
	detections  []Detection
	err         error
	gate        chan struct{}
	calls       int
	inFlight    int
	maxInFlight int
	started     chan struct{}
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{started: make(chan struct{}, 64)}
}

// SetDetections sets the detections that will be returned by Detect.
func (m *MockDetector) SetDetections(detections []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = detections
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Block makes every following Detect call wait until Release is called.
func (m *MockDetector) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Release lets blocked Detect calls return.
func (m *MockDetector) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Started receives one value each time Detect is entered.
func (m *MockDetector) Started() <-chan struct{} {
	return m.started
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// InFlight returns how many Detect calls have not returned yet.
func (m *MockDetector) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// MaxInFlight returns the highest number of concurrent Detect calls observed.
func (m *MockDetector) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Detect returns the pre-configured detections or error.
// A blocked call ignores context cancellation the way a real forward pass would.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	gate := m.gate
	m.mu.Unlock()

	select {
	case m.started <- struct{}{}:
	default:
	}

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--

	if m.err != nil {
		return nil, m.err
	}
	out := make([]Detection, len(m.detections))
	copy(out, m.detections)
	return out, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// CupDetection returns a single cup detection, handy for overlay examples.
func CupDetection() Detection {
	return Detection{
		Class: "cup",
		Score: 0.87,
		BBox:  BBox{X: 10, Y: 20, Width: 50, Height: 60},
	}
}
