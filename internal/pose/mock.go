package pose

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockEstimator is a test Estimator whose results are set by the caller.
type MockEstimator struct {
	mu        sync.Mutex
	poses     []Pose
	queue     [][]Pose
	err       error
	initErr   error
	initDelay time.Duration
	calls     int
	inits     int
	closed    bool
}

// NewMockEstimator creates a MockEstimator that returns no poses.
func NewMockEstimator() *MockEstimator {
	return &MockEstimator{}
}

// SetPoses sets the poses returned by every Estimate call.
func (m *MockEstimator) SetPoses(poses []Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
}

// Enqueue queues results returned one per Estimate call ahead of SetPoses.
func (m *MockEstimator) Enqueue(results ...[]Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, results...)
}

// SetError makes Estimate fail with err. Nil clears it.
func (m *MockEstimator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetInitError makes Init fail with err.
func (m *MockEstimator) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// SetInitDelay makes Init block for d or until its context ends.
func (m *MockEstimator) SetInitDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initDelay = d
}

// Init reopens a closed estimator unless an init error is set.
func (m *MockEstimator) Init(ctx context.Context) error {
	m.mu.Lock()
	delay, err := m.initDelay, m.initErr
	m.inits++
	if err == nil {
		m.closed = false
	}
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func (m *MockEstimator) Estimate(ctx context.Context, frame *gocv.Mat) ([]Pose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.closed {
		return nil, ErrClosed
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	return m.poses, nil
}

func (m *MockEstimator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns the number of Estimate calls.
func (m *MockEstimator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Inits returns the number of Init calls.
func (m *MockEstimator) Inits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inits
}

// Closed reports whether Close was called.
func (m *MockEstimator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
