package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// blurKernel smooths sensor noise before differencing.
	blurKernel = 21
	// pixelDelta is the grey-level change that marks a pixel as moved.
	pixelDelta = 25
)

// MotionGate decides whether a frame differs enough from the previous one to
// be worth sending to the pose estimator. A presenter standing still produces
// no swipe, so static frames can be skipped.
type MotionGate struct {
	mu        sync.Mutex
	minChange float64
	prev      gocv.Mat
	primed    bool
}

// NewMotionGate creates a gate that opens when more than minChange percent of
// pixels changed. A minChange of 0 or less opens the gate on every frame.
func NewMotionGate(minChange float64) *MotionGate {
	return &MotionGate{
		minChange: minChange,
		prev:      gocv.NewMat(),
	}
}

// Open reports whether frame should be processed, along with the percentage
// of pixels that changed since the previous call. The first frame after
// creation or Reset always opens the gate.
func (g *MotionGate) Open(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)

	if !g.primed || g.prev.Rows() != blurred.Rows() || g.prev.Cols() != blurred.Cols() {
		blurred.CopyTo(&g.prev)
		g.primed = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, pixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100
	blurred.CopyTo(&g.prev)

	if g.minChange <= 0 {
		return true, changed
	}
	return changed > g.minChange, changed
}

// Reset forgets the previous frame.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
}

// Close releases the stored frame. The gate can still be used afterwards.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
}

func (g *MotionGate) release() {
	if !g.prev.Empty() {
		g.prev.Close()
		g.prev = gocv.NewMat()
	}
	g.primed = false
}

// SetMinChange updates the threshold. Negative values are ignored.
func (g *MotionGate) SetMinChange(minChange float64) {
	if minChange < 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.minChange = minChange
}
