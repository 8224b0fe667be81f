package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/airdeck/internal/capture"
	"github.com/ayusman/airdeck/internal/gesture"
	"github.com/ayusman/airdeck/internal/keypoint/keypointtest"
	"github.com/ayusman/airdeck/internal/metrics"
	"github.com/ayusman/airdeck/internal/pose"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testRig struct {
	camera    *capture.MockCamera
	estimator *pose.MockEstimator
	metrics   *metrics.Metrics
	ctrl      *Controller
}

func newTestRig(t *testing.T, mutate func(*ControllerOptions)) *testRig {
	t.Helper()
	r := &testRig{
		camera:    capture.NewMockCamera(nil, true),
		estimator: pose.NewMockEstimator(),
		metrics:   metrics.New(),
	}
	opts := ControllerOptions{
		Camera:       r.camera,
		NewEstimator: func() (pose.Estimator, error) { return r.estimator, nil },
		FPS:          100,
		InitTimeout:  time.Second,
		Metrics:      r.metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r.ctrl = NewController(opts)
	t.Cleanup(r.ctrl.Close)
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestController_StartStop(t *testing.T) {
	r := newTestRig(t, nil)

	var mu sync.Mutex
	var seen []Status
	r.ctrl.OnStatus(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	st := r.ctrl.Status()
	if !st.Active || st.Loading || st.Error != "" {
		t.Errorf("status after Start = %+v, want active", st)
	}
	if st.FrameWidth != capture.DefaultWidth || st.FrameHeight != capture.DefaultHeight {
		t.Errorf("frame size = %dx%d, want %dx%d", st.FrameWidth, st.FrameHeight, capture.DefaultWidth, capture.DefaultHeight)
	}
	if testutil.ToFloat64(r.metrics.DetectionActive) != 1 {
		t.Error("detection_active should be 1 while running")
	}

	waitFor(t, "estimate calls", func() bool { return r.estimator.Calls() >= 3 })

	mu.Lock()
	if len(seen) == 0 || !seen[0].Loading {
		t.Errorf("first published status should be loading, got %+v", seen)
	}
	mu.Unlock()

	r.ctrl.Stop()
	st = r.ctrl.Status()
	if st.Active || st.Loading {
		t.Errorf("status after Stop = %+v, want inactive", st)
	}
	if r.camera.IsOpen() {
		t.Error("camera should be closed after Stop")
	}
	if !r.estimator.Closed() {
		t.Error("estimator should be closed after Stop")
	}
	if testutil.ToFloat64(r.metrics.DetectionActive) != 0 {
		t.Error("detection_active should be 0 after Stop")
	}

	calls := r.estimator.Calls()
	time.Sleep(50 * time.Millisecond)
	if r.estimator.Calls() != calls {
		t.Error("no estimates should run after Stop returns")
	}

	// Idempotent.
	r.ctrl.Stop()
	r.ctrl.Stop()
}

func TestController_StartTwiceIsNoop(t *testing.T) {
	r := newTestRig(t, nil)
	ctx := context.Background()

	if err := r.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.ctrl.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if r.estimator.Inits() != 1 {
		t.Errorf("Inits() = %d, want 1", r.estimator.Inits())
	}
}

func TestController_Restart(t *testing.T) {
	r := newTestRig(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := r.ctrl.Start(ctx); err != nil {
			t.Fatalf("Start() #%d error = %v", i+1, err)
		}
		waitFor(t, "estimate calls", func() bool { return r.estimator.Calls() > 0 })
		r.ctrl.Stop()
	}
	if r.estimator.Inits() != 2 {
		t.Errorf("Inits() = %d, want 2", r.estimator.Inits())
	}
}

func TestController_CameraDenied(t *testing.T) {
	r := newTestRig(t, nil)
	r.camera.SetOpenError(errors.New("permission denied"))

	err := r.ctrl.Start(context.Background())

	var camErr *CameraAccessError
	if !errors.As(err, &camErr) {
		t.Fatalf("Start() error = %v, want *CameraAccessError", err)
	}
	st := r.ctrl.Status()
	if st.Active || st.Loading || st.Error == "" {
		t.Errorf("status = %+v, want error state", st)
	}
	if r.estimator.Inits() != 0 {
		t.Error("estimator should not be initialised without a camera")
	}

	// The error stays visible until the next Start.
	r.ctrl.Stop()
	if r.ctrl.Status().Error == "" {
		t.Error("Stop() should keep the error message")
	}

	r.camera.SetOpenError(nil)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
	if r.ctrl.Status().Error != "" {
		t.Error("successful Start() should clear the error")
	}
}

func TestController_ModelInitTimeout(t *testing.T) {
	r := newTestRig(t, func(o *ControllerOptions) { o.InitTimeout = 30 * time.Millisecond })
	r.estimator.SetInitDelay(5 * time.Second)

	err := r.ctrl.Start(context.Background())

	var timeoutErr *ModelInitTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Start() error = %v, want *ModelInitTimeoutError", err)
	}
	if timeoutErr.Timeout != 30*time.Millisecond {
		t.Errorf("Timeout = %v, want 30ms", timeoutErr.Timeout)
	}
	if r.ctrl.Status().Error == "" {
		t.Error("status should carry the timeout error")
	}
	if r.camera.IsOpen() {
		t.Error("camera should be released after a failed start")
	}
	if !r.estimator.Closed() {
		t.Error("estimator should be closed after a failed start")
	}
}

func TestController_InitError(t *testing.T) {
	r := newTestRig(t, nil)
	r.estimator.SetInitError(errors.New("model missing"))

	err := r.ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("Start() should fail")
	}
	var timeoutErr *ModelInitTimeoutError
	if errors.As(err, &timeoutErr) {
		t.Error("a plain init failure is not a timeout")
	}
}

func TestController_StopDuringStartup(t *testing.T) {
	r := newTestRig(t, func(o *ControllerOptions) { o.InitTimeout = 10 * time.Second })
	r.estimator.SetInitDelay(10 * time.Second)

	errc := make(chan error, 1)
	go func() { errc <- r.ctrl.Start(context.Background()) }()

	waitFor(t, "loading", func() bool { return r.ctrl.Status().Loading })
	r.ctrl.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Start() error = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	st := r.ctrl.Status()
	if st.Active || st.Loading || st.Error != "" {
		t.Errorf("status = %+v, want plain inactive", st)
	}
	if r.camera.IsOpen() {
		t.Error("camera should be closed")
	}
}

func TestController_CycleErrorsKeepLoopAlive(t *testing.T) {
	r := newTestRig(t, nil)
	r.estimator.SetError(errors.New("inference failed"))

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "repeated estimates", func() bool { return r.estimator.Calls() >= 3 })

	if !r.ctrl.Running() {
		t.Error("loop should keep running after cycle errors")
	}
	if got := testutil.ToFloat64(r.metrics.CycleErrors); got < 2 {
		t.Errorf("cycle_errors_total = %v, want at least 2", got)
	}

	r.estimator.SetError(nil)
	waitFor(t, "recovered estimate", func() bool {
		return testutil.ToFloat64(r.metrics.FramesEstimated) > 0
	})
}

func TestController_EmitsGestures(t *testing.T) {
	r := newTestRig(t, nil)
	for _, f := range keypointtest.SwipeRightSequence() {
		r.estimator.Enqueue(pose.FromFrame(f))
	}

	gestures := make(chan gesture.Gesture, 4)
	r.ctrl.OnGesture(func(g gesture.Gesture) { gestures <- g })

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case g := <-gestures:
		if g != gesture.SwipeRight {
			t.Errorf("gesture = %q, want %q", g, gesture.SwipeRight)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no gesture emitted")
	}

	// One gesture per cooldown window.
	select {
	case g := <-gestures:
		t.Errorf("unexpected second gesture %q during cooldown", g)
	case <-time.After(100 * time.Millisecond):
	}

	if r.ctrl.Status().LastGesture != gesture.SwipeRight {
		t.Errorf("LastGesture = %q, want %q", r.ctrl.Status().LastGesture, gesture.SwipeRight)
	}
	if got := testutil.ToFloat64(r.metrics.Gestures.WithLabelValues(string(gesture.SwipeRight))); got != 1 {
		t.Errorf("gestures_total{swipe-right} = %v, want 1", got)
	}
}

func TestController_MotionGateSkipsStaticFrames(t *testing.T) {
	r := newTestRig(t, func(o *ControllerOptions) { o.MotionGate = capture.NewMotionGate(5) })

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "skipped frames", func() bool { return testutil.ToFloat64(r.metrics.FramesSkipped) >= 3 })

	// Blank frames never change, so only the first reaches the estimator.
	if r.estimator.Calls() != 1 {
		t.Errorf("Estimate calls = %d, want 1", r.estimator.Calls())
	}
}

func TestController_Snapshot(t *testing.T) {
	r := newTestRig(t, nil)
	r.estimator.SetPoses(pose.FromFrame(keypointtest.StandingPose()))

	img, _, ok := r.ctrl.Snapshot()
	img.Close()
	if ok {
		t.Error("Snapshot() before any frame should report !ok")
	}

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "keypoints", func() bool { return len(r.ctrl.LastFrame().Keypoints) > 0 })

	img, kf, ok := r.ctrl.Snapshot()
	defer img.Close()
	if !ok {
		t.Fatal("Snapshot() should report ok after frames were read")
	}
	if img.Cols() != capture.DefaultWidth || img.Rows() != capture.DefaultHeight {
		t.Errorf("snapshot size = %dx%d", img.Cols(), img.Rows())
	}
	if len(kf.Keypoints) != len(keypointtest.StandingPose().Keypoints) {
		t.Errorf("snapshot keypoints = %d", len(kf.Keypoints))
	}
	if len(r.ctrl.Status().Keypoints) == 0 {
		t.Error("status should carry the latest keypoints")
	}
}

func TestController_SetClassifierConfig(t *testing.T) {
	r := newTestRig(t, nil)

	if err := r.ctrl.SetClassifierConfig(gesture.Config{MinConfidence: 1.5}); err == nil {
		t.Error("invalid config should be rejected")
	}
	if r.ctrl.ClassifierConfig() != gesture.DefaultConfig() {
		t.Error("rejected config must not be applied")
	}

	cfg := gesture.Config{SwipeThresholdPx: 80, Cooldown: time.Second, MinConfidence: 0.5}
	if err := r.ctrl.SetClassifierConfig(cfg); err != nil {
		t.Fatalf("SetClassifierConfig() error = %v", err)
	}
	if r.ctrl.ClassifierConfig() != cfg {
		t.Errorf("ClassifierConfig() = %+v, want %+v", r.ctrl.ClassifierConfig(), cfg)
	}
}
