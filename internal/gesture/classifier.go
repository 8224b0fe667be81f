// Package gesture turns a stream of keypoint frames into discrete, debounced
// swipe gestures.
package gesture

import (
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/airdeck/internal/keypoint"
)

// Gesture is a recognized swipe.
type Gesture string

const (
	// SwipeRight is emitted when the right wrist moves right past the threshold.
	SwipeRight Gesture = "swipe-right"
	// SwipeLeft is emitted when the left wrist moves left past the threshold.
	SwipeLeft Gesture = "swipe-left"
)

// Default classifier tuning.
const (
	DefaultSwipeThresholdPx = 50
	DefaultCooldown         = 800 * time.Millisecond
	DefaultMinConfidence    = 0.3
)

// Config holds classifier tuning. It is fixed for a classifier's lifetime.
type Config struct {
	// SwipeThresholdPx is the minimum per-cycle horizontal wrist displacement.
	SwipeThresholdPx float64
	// Cooldown is the refractory period after an emitted gesture.
	Cooldown time.Duration
	// MinConfidence is the score a wrist must exceed to be tracked.
	MinConfidence float64
}

// DefaultConfig returns a Config with the default tuning.
func DefaultConfig() Config {
	return Config{
		SwipeThresholdPx: DefaultSwipeThresholdPx,
		Cooldown:         DefaultCooldown,
		MinConfidence:    DefaultMinConfidence,
	}
}

// Validate checks that the tuning values are usable.
func (c Config) Validate() error {
	if c.SwipeThresholdPx < 0 {
		return fmt.Errorf("swipe threshold must not be negative, got %v", c.SwipeThresholdPx)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %v", c.Cooldown)
	}
	if c.MinConfidence < 0 || c.MinConfidence >= 1 {
		return fmt.Errorf("min confidence must be in [0, 1), got %v", c.MinConfidence)
	}
	return nil
}

// stopper is the part of *time.Timer the classifier needs.
type stopper interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Classifier detects swipes from the displacement of each wrist between
// consecutive frames. It is safe for concurrent use; the cooldown timer fires
// on its own goroutine.
type Classifier struct {
	config Config

	mu             sync.Mutex
	lastLeftX      float64
	lastRightX     float64
	cooldownActive bool
	cooldownTimer  stopper
	cooldownGen    uint64
	lastFrame      keypoint.Frame
	closed         bool

	afterFunc func(time.Duration, func()) stopper
}

// NewClassifier creates a Classifier with the given tuning. Wrist positions
// start at zero.
func NewClassifier(config Config) *Classifier {
	return &Classifier{
		config:    config,
		afterFunc: realAfterFunc,
	}
}

// Config returns the classifier's tuning.
func (c *Classifier) Config() Config {
	return c.config
}

// Classify consumes one frame and returns the gesture it completes, if any.
//
// The right wrist is evaluated first and wins when both wrists cross the
// threshold in the same frame. A wrist below MinConfidence is neither
// evaluated nor tracked. If either wrist is missing from the frame entirely
// nothing is tracked.
func (c *Classifier) Classify(frame keypoint.Frame) (Gesture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", false
	}

	c.lastFrame = frame

	if c.cooldownActive {
		return "", false
	}

	left, okLeft := frame.Find(keypoint.LeftWrist)
	right, okRight := frame.Find(keypoint.RightWrist)
	if !okLeft || !okRight {
		return "", false
	}

	if c.confident(right) {
		deltaX := right.X - c.lastRightX
		c.lastRightX = right.X
		if deltaX > c.config.SwipeThresholdPx {
			c.startCooldown()
			return SwipeRight, true
		}
	}

	if c.confident(left) {
		deltaX := left.X - c.lastLeftX
		c.lastLeftX = left.X
		if deltaX < -c.config.SwipeThresholdPx {
			c.startCooldown()
			return SwipeLeft, true
		}
	}

	return "", false
}

func (c *Classifier) confident(kp keypoint.Keypoint) bool {
	return kp.Observed() && kp.Score > c.config.MinConfidence
}

// startCooldown must be called with mu held.
func (c *Classifier) startCooldown() {
	c.cooldownActive = true
	c.cooldownGen++
	gen := c.cooldownGen
	c.cooldownTimer = c.afterFunc(c.config.Cooldown, func() {
		c.endCooldown(gen)
	})
}

func (c *Classifier) endCooldown(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A closed classifier or a superseded timer must not touch state.
	if c.closed || gen != c.cooldownGen {
		return
	}
	c.cooldownActive = false
	c.cooldownTimer = nil
}

// CooldownActive reports whether gestures are currently suppressed.
func (c *Classifier) CooldownActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownActive
}

// LastFrame returns the most recent frame passed to Classify.
func (c *Classifier) LastFrame() keypoint.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFrame
}

// WristX returns the last tracked x position of the left and right wrists.
func (c *Classifier) WristX() (left, right float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLeftX, c.lastRightX
}

// Close cancels any pending cooldown reset. After Close, Classify always
// returns no gesture and the cooldown timer never mutates state.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.cooldownTimer != nil {
		c.cooldownTimer.Stop()
		c.cooldownTimer = nil
	}
}
