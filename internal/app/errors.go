package app

import (
	"errors"
	"fmt"
	"time"
)

// ErrStopped is returned by Start when Stop was called before startup
// finished.
var ErrStopped = errors.New("detection stopped during startup")

// CameraAccessError reports that the camera could not be opened or produced
// no frames. It is not retried automatically.
type CameraAccessError struct {
	Err error
}

func (e *CameraAccessError) Error() string {
	return fmt.Sprintf("camera access failed: %v", e.Err)
}

func (e *CameraAccessError) Unwrap() error { return e.Err }

// ModelInitTimeoutError reports that the pose estimator did not become ready
// within the configured bound.
type ModelInitTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *ModelInitTimeoutError) Error() string {
	return fmt.Sprintf("pose model did not load within %v", e.Timeout)
}

func (e *ModelInitTimeoutError) Unwrap() error { return e.Err }

// CycleError is a failure inside one detection cycle. The loop logs it and
// carries on with the next frame.
type CycleError struct {
	Stage string // capture, estimate or panic
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("detection cycle failed at %s: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }
