// Package pose defines the body pose estimator seam and its implementations.
//
// The estimator itself is an external black box: a MoveNet-style model that
// returns named keypoints in pixel coordinates of the submitted frame.
package pose

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/airdeck/internal/keypoint"
	"gocv.io/x/gocv"
)

// ErrClosed is returned by Estimate after Close.
var ErrClosed = errors.New("estimator closed")

// Pose is one detected body.
type Pose struct {
	Keypoints []keypoint.Keypoint `json:"keypoints"`
	Score     float64             `json:"score"`
}

// Estimator produces poses for video frames.
type Estimator interface {
	// Init prepares the model. It may take a long time and must honour ctx.
	Init(ctx context.Context) error
	// Estimate returns the poses found in frame, possibly none.
	Estimate(ctx context.Context, frame *gocv.Mat) ([]Pose, error)
	// Close releases the model.
	Close() error
}

// ToFrame converts the first pose into a keypoint frame. With no poses the
// frame has no keypoints.
func ToFrame(poses []Pose, width, height int, ts time.Time) keypoint.Frame {
	f := keypoint.Frame{
		Width:     width,
		Height:    height,
		Timestamp: ts,
	}
	if len(poses) > 0 {
		f.Keypoints = append([]keypoint.Keypoint(nil), poses[0].Keypoints...)
	}
	return f
}

// FromFrame wraps the keypoints of f as a single pose.
func FromFrame(f keypoint.Frame) []Pose {
	if f.Empty() {
		return nil
	}
	return []Pose{{Keypoints: f.Keypoints, Score: 1}}
}

// encodeJPEG encodes frame for transport to an external model.
func encodeJPEG(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// response is the JSON shape returned by both external estimators.
type response struct {
	Poses []Pose `json:"poses"`
	Error string `json:"error,omitempty"`
}

func (r response) err() error {
	if r.Error != "" {
		return errors.New(r.Error)
	}
	return nil
}
