package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/airdeck/internal/capture"
	"github.com/ayusman/airdeck/internal/gesture"
	"github.com/ayusman/airdeck/internal/keypoint"
	"github.com/ayusman/airdeck/internal/logging"
	"github.com/ayusman/airdeck/internal/metrics"
	"github.com/ayusman/airdeck/internal/pose"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// Detection defaults.
const (
	DefaultFPS         = 30
	DefaultInitTimeout = 30 * time.Second
)

// Status is the observable state of gesture detection.
type Status struct {
	Loading     bool                `json:"loading"`
	Active      bool                `json:"active"`
	Error       string              `json:"error,omitempty"`
	LastGesture gesture.Gesture     `json:"lastGesture,omitempty"`
	Keypoints   []keypoint.Keypoint `json:"keypoints"`
	FrameWidth  int                 `json:"frameWidth,omitempty"`
	FrameHeight int                 `json:"frameHeight,omitempty"`
}

// ControllerOptions configure a Controller.
type ControllerOptions struct {
	Camera capture.Camera
	// NewEstimator is called on every Start, since Stop disposes the previous
	// estimator.
	NewEstimator func() (pose.Estimator, error)
	Classifier   gesture.Config
	FPS          int
	InitTimeout  time.Duration
	// MotionGate skips estimation on static frames. Nil estimates every frame.
	MotionGate *capture.MotionGate
	Metrics    *metrics.Metrics
}

// Controller runs the detection loop: one frame, one estimate, one
// classification per cycle, paced to the target frame rate. Cycles never
// overlap. It owns the camera and estimator between Start and Stop.
type Controller struct {
	opts ControllerOptions

	mu            sync.Mutex
	status        Status
	gen           uint64
	starting      bool
	running       bool
	cancel        context.CancelFunc
	startDone     chan struct{}
	done          chan struct{}
	estimator     pose.Estimator
	classifier    *gesture.Classifier
	classifierCfg gesture.Config
	gestureFns    []func(gesture.Gesture)
	statusFns     []func(Status)

	frameMu sync.Mutex
	frame   gocv.Mat
	kpFrame keypoint.Frame
}

// NewController creates a stopped Controller.
func NewController(opts ControllerOptions) *Controller {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = DefaultInitTimeout
	}
	if opts.Classifier == (gesture.Config{}) {
		opts.Classifier = gesture.DefaultConfig()
	}
	return &Controller{
		opts:          opts,
		classifierCfg: opts.Classifier,
		frame:         gocv.NewMat(),
	}
}

// OnGesture registers fn to receive every emitted gesture. It runs on the
// detection goroutine and must not call Stop.
func (c *Controller) OnGesture(fn func(gesture.Gesture)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gestureFns = append(c.gestureFns, fn)
}

// OnStatus registers fn to receive status updates, including once per
// processed frame while active.
func (c *Controller) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFns = append(c.statusFns, fn)
}

// Status returns a snapshot of the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Running reports whether the loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start opens the camera, waits for a first frame, initialises the estimator
// within the init timeout and starts the loop. Failures leave the status in
// the error state and return *CameraAccessError, *ModelInitTimeoutError or a
// wrapped estimator error. Starting a running controller is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.starting || c.running {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(context.Background())
	startDone := make(chan struct{})
	c.cancel = cancel
	c.startDone = startDone
	c.starting = true
	c.status = Status{Loading: true}
	st := c.status
	c.mu.Unlock()

	defer close(startDone)
	c.publish(st)

	est, cls, width, height, err := c.startup(ctx, runCtx)

	c.mu.Lock()
	c.starting = false
	if gen != c.gen {
		c.mu.Unlock()
		cancel()
		if err == nil {
			est.Close()
			cls.Close()
			c.opts.Camera.Close()
		}
		return ErrStopped
	}
	if err != nil {
		c.cancel = nil
		c.status = Status{Error: err.Error()}
		st = c.status
		c.mu.Unlock()

		cancel()
		logging.Error("gesture detection unavailable", "err", err)
		c.publish(st)
		return err
	}

	done := make(chan struct{})
	c.running = true
	c.done = done
	c.estimator = est
	c.classifier = cls
	c.status = Status{Active: true, FrameWidth: width, FrameHeight: height}
	st = c.status
	c.mu.Unlock()

	if m := c.opts.Metrics; m != nil {
		m.SetActive(true)
	}
	logging.Info("gesture detection active", "width", width, "height", height, "fps", c.opts.FPS)
	c.publish(st)

	go c.loop(runCtx, gen, done)
	return nil
}

func (c *Controller) startup(ctx, runCtx context.Context) (pose.Estimator, *gesture.Classifier, int, int, error) {
	cam := c.opts.Camera
	if err := cam.Open(); err != nil {
		return nil, nil, 0, 0, &CameraAccessError{Err: err}
	}

	first, err := cam.ReadFrame()
	if err != nil {
		cam.Close()
		return nil, nil, 0, 0, &CameraAccessError{Err: err}
	}
	width, height := first.Cols(), first.Rows()
	first.Close()

	est, err := c.opts.NewEstimator()
	if err != nil {
		cam.Close()
		return nil, nil, 0, 0, fmt.Errorf("create pose estimator: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, c.opts.InitTimeout)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	logging.Info("loading pose model", "timeout", c.opts.InitTimeout)
	if err := est.Init(initCtx); err != nil {
		est.Close()
		cam.Close()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && runCtx.Err() == nil {
			return nil, nil, 0, 0, &ModelInitTimeoutError{Timeout: c.opts.InitTimeout, Err: err}
		}
		return nil, nil, 0, 0, fmt.Errorf("initialise pose estimator: %w", err)
	}

	c.mu.Lock()
	cfg := c.classifierCfg
	c.mu.Unlock()
	return est, gesture.NewClassifier(cfg), width, height, nil
}

// Stop cancels the loop, waits for it, and releases the camera, estimator
// and classifier. It is idempotent and safe while Start is still in
// progress. A previous error stays visible until the next Start.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	cancel, startDone, done := c.cancel, c.startDone, c.done
	wasRunning := c.running
	est, cls := c.estimator, c.classifier

	c.cancel, c.startDone, c.done = nil, nil, nil
	c.running = false
	c.estimator, c.classifier = nil, nil
	c.status = Status{Error: c.status.Error}
	st := c.status
	c.mu.Unlock()

	if cancel == nil && !wasRunning {
		return
	}
	if cancel != nil {
		cancel()
	}
	if startDone != nil {
		<-startDone
	}
	if done != nil {
		<-done
	}

	if wasRunning {
		if err := c.opts.Camera.Close(); err != nil {
			logging.Warn("error closing camera", "err", err)
		}
		if err := est.Close(); err != nil {
			logging.Warn("error closing pose estimator", "err", err)
		}
		cls.Close()
		if c.opts.MotionGate != nil {
			c.opts.MotionGate.Reset()
		}
		c.frameMu.Lock()
		c.kpFrame = keypoint.Frame{}
		c.frameMu.Unlock()
		logging.Info("gesture detection stopped")
	}

	if m := c.opts.Metrics; m != nil {
		m.SetActive(false)
	}
	c.publish(st)
}

// Close stops the controller and frees the retained frame.
func (c *Controller) Close() {
	c.Stop()
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	c.frame.Close()
}

func (c *Controller) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	limiter := rate.NewLimiter(rate.Limit(c.opts.FPS), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := c.cycle(ctx, gen); err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn("detection cycle skipped", "err", err)
			if m := c.opts.Metrics; m != nil {
				m.CycleErrors.Inc()
			}
		}
	}
}

// cycle processes one frame. Errors and panics are returned as *CycleError.
func (c *Controller) cycle(ctx context.Context, gen uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CycleError{Stage: "panic", Err: fmt.Errorf("%v", r)}
		}
	}()

	c.mu.Lock()
	est, cls := c.estimator, c.classifier
	c.mu.Unlock()
	if est == nil || cls == nil {
		return nil
	}

	frame, err := c.opts.Camera.ReadFrame()
	if err != nil {
		return &CycleError{Stage: "capture", Err: err}
	}
	defer frame.Close()

	m := c.opts.Metrics
	if m != nil {
		m.FramesRead.Inc()
	}
	c.frameMu.Lock()
	frame.CopyTo(&c.frame)
	c.frameMu.Unlock()

	if c.opts.MotionGate != nil {
		if open, _ := c.opts.MotionGate.Open(frame); !open {
			if m != nil {
				m.FramesSkipped.Inc()
			}
			return nil
		}
	}

	started := time.Now()
	poses, err := est.Estimate(ctx, frame)
	if ctx.Err() != nil {
		// Stopped while estimating; the result is stale.
		return nil
	}
	if m != nil {
		m.ObserveEstimate(time.Since(started))
	}
	if err != nil {
		return &CycleError{Stage: "estimate", Err: err}
	}
	if m != nil {
		m.FramesEstimated.Inc()
	}

	kf := pose.ToFrame(poses, frame.Cols(), frame.Rows(), time.Now())
	g, emitted := cls.Classify(kf)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.status.Keypoints = kf.Keypoints
	if emitted {
		c.status.LastGesture = g
	}
	st := c.status
	gestureFns := append(([]func(gesture.Gesture))(nil), c.gestureFns...)
	c.mu.Unlock()

	c.frameMu.Lock()
	c.kpFrame = kf
	c.frameMu.Unlock()

	if emitted {
		if m != nil {
			m.Gestures.WithLabelValues(string(g)).Inc()
		}
		logging.Info("gesture detected", "gesture", g)
		for _, fn := range gestureFns {
			fn(g)
		}
	}
	c.publish(st)
	return nil
}

func (c *Controller) publish(st Status) {
	c.mu.Lock()
	fns := append(([]func(Status))(nil), c.statusFns...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Snapshot returns a copy of the most recent camera frame and the keypoints
// estimated for it. The caller must close the returned Mat. ok is false
// before the first frame.
func (c *Controller) Snapshot() (img gocv.Mat, kf keypoint.Frame, ok bool) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	if c.frame.Empty() {
		return gocv.NewMat(), keypoint.Frame{}, false
	}
	return c.frame.Clone(), c.kpFrame, true
}

// LastFrame returns the most recent keypoint frame.
func (c *Controller) LastFrame() keypoint.Frame {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.kpFrame
}

// ClassifierConfig returns the settings used for new classifiers.
func (c *Controller) ClassifierConfig() gesture.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifierCfg
}

// SetClassifierConfig validates cfg and applies it. A running loop switches
// to a fresh classifier, so wrist history and cooldown restart.
func (c *Controller) SetClassifierConfig(cfg gesture.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.classifierCfg = cfg
	old := c.classifier
	if c.running {
		c.classifier = gesture.NewClassifier(cfg)
	}
	c.mu.Unlock()

	if c.running && old != nil {
		old.Close()
	}
	return nil
}
