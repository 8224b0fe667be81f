package app

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayusman/airdeck/internal/config"
	"github.com/ayusman/airdeck/internal/deck"
	"github.com/ayusman/airdeck/internal/gesture"
	"github.com/ayusman/airdeck/internal/keyboard"
	"github.com/ayusman/airdeck/internal/keypoint/keypointtest"
	"github.com/ayusman/airdeck/internal/metrics"
	"github.com/ayusman/airdeck/internal/pose"
	"github.com/ayusman/airdeck/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const threeSlides = "# One\n\n---\n\n# Two\n\n---\n\n# Three"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestApp(t *testing.T, s *store.Store, ctrl *Controller) (*App, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	a := New(Options{
		Deck:       deck.New(threeSlides),
		DeckName:   "talk.md",
		Controller: ctrl,
		Store:      s,
		Metrics:    m,
	})
	if err := a.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return a, m
}

func TestApp_KeyboardNavigation(t *testing.T) {
	s := newTestStore(t)
	a, m := newTestApp(t, s, nil)

	steps := []struct {
		key    string
		action keyboard.Action
		want   int
	}{
		{key: "ArrowRight", action: keyboard.ActionNext, want: 1},
		{key: " ", action: keyboard.ActionNext, want: 2},
		{key: "PageDown", action: keyboard.ActionNext, want: 2},
		{key: "Home", action: keyboard.ActionFirst, want: 0},
		{key: "ArrowLeft", action: keyboard.ActionPrevious, want: 0},
		{key: "End", action: keyboard.ActionLast, want: 2},
		{key: "x", action: keyboard.ActionNone, want: 2},
	}
	for _, step := range steps {
		if got := a.HandleKey(step.key); got != step.action {
			t.Errorf("HandleKey(%q) = %q, want %q", step.key, got, step.action)
		}
		if got := a.Navigation().CurrentSlide; got != step.want {
			t.Errorf("after %q slide = %d, want %d", step.key, got, step.want)
		}
	}

	events, err := s.Events().ListBySession(a.SessionID())
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	// Boundary no-ops are not recorded.
	wantActions := []string{"next", "next", "first", "last"}
	if len(events) != len(wantActions) {
		t.Fatalf("recorded %d events, want %d: %+v", len(events), len(wantActions), events)
	}
	for i, e := range events {
		if e.Action != wantActions[i] || e.Source != SourceKeyboard {
			t.Errorf("event %d = %s/%s, want keyboard/%s", i, e.Source, e.Action, wantActions[i])
		}
	}
	if got := testutil.ToFloat64(m.Navigations.WithLabelValues(SourceKeyboard)); got != 4 {
		t.Errorf("navigations_total{keyboard} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.CurrentSlide); got != 2 {
		t.Errorf("current_slide = %v, want 2", got)
	}
}

func TestApp_GoTo(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)

	if got := a.GoTo(SourceHTTP, 2).CurrentSlide; got != 2 {
		t.Errorf("GoTo(2) = %d, want 2", got)
	}
	if got := a.GoTo(SourceHTTP, 7).CurrentSlide; got != 2 {
		t.Errorf("GoTo(7) = %d, want unchanged 2", got)
	}
	if got := a.GoTo(SourceHTTP, -1).CurrentSlide; got != 2 {
		t.Errorf("GoTo(-1) = %d, want unchanged 2", got)
	}
}

func TestApp_ExitKey(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)

	var exits atomic.Int32
	a.OnExit(func() { exits.Add(1) })

	if got := a.HandleKey("Escape"); got != keyboard.ActionExit {
		t.Errorf("HandleKey(Escape) = %q, want exit", got)
	}
	if exits.Load() != 1 {
		t.Errorf("exit handlers ran %d times, want 1", exits.Load())
	}
}

func TestApp_GestureNavigation(t *testing.T) {
	s := newTestStore(t)
	r := newTestRig(t, nil)
	for _, f := range keypointtest.SwipeRightSequence() {
		r.estimator.Enqueue(pose.FromFrame(f))
	}
	a, _ := newTestApp(t, s, r.ctrl)

	changes := make(chan struct{}, 64)
	a.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	if err := a.StartGestures(context.Background()); err != nil {
		t.Fatalf("StartGestures() error = %v", err)
	}
	waitFor(t, "gesture navigation", func() bool { return a.Navigation().CurrentSlide == 1 })

	if got := a.Feedback(); got != FeedbackNext {
		t.Errorf("Feedback() = %q, want %q", got, FeedbackNext)
	}
	snap := a.Snapshot()
	if !snap.Detection.Active || snap.Slide != "# Two" {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if len(changes) == 0 {
		t.Error("OnChange listeners should have been notified")
	}

	a.StopGestures()
	events, err := s.Events().ListBySession(a.SessionID())
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	e := events[0]
	if e.Source != SourceGesture || e.Action != "next" || e.Gesture != string(gesture.SwipeRight) || e.FromSlide != 0 || e.ToSlide != 1 {
		t.Errorf("event = %+v", e)
	}
}

func TestApp_FeedbackExpires(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.handleGesture(gesture.SwipeLeft)
	if got := a.Feedback(); got != FeedbackBack {
		t.Errorf("Feedback() = %q, want %q", got, FeedbackBack)
	}

	now = now.Add(FeedbackDuration - time.Millisecond)
	if got := a.Feedback(); got != FeedbackBack {
		t.Errorf("Feedback() just before expiry = %q", got)
	}

	now = now.Add(time.Millisecond)
	if got := a.Feedback(); got != "" {
		t.Errorf("Feedback() after expiry = %q, want empty", got)
	}
}

func TestApp_ToggleGestures(t *testing.T) {
	r := newTestRig(t, nil)
	a, _ := newTestApp(t, nil, r.ctrl)
	ctx := context.Background()

	on, err := a.ToggleGestures(ctx)
	if err != nil || !on {
		t.Fatalf("ToggleGestures() = %v, %v, want true", on, err)
	}
	on, err = a.ToggleGestures(ctx)
	if err != nil || on {
		t.Fatalf("ToggleGestures() = %v, %v, want false", on, err)
	}
	if r.ctrl.Running() {
		t.Error("controller should be stopped")
	}
}

func TestApp_SetDeckTextClamps(t *testing.T) {
	s := newTestStore(t)
	a, _ := newTestApp(t, s, nil)

	a.Last(SourceHTTP)
	state := a.SetDeckText("# Only")
	if state.CurrentSlide != 0 || state.TotalSlides != 1 {
		t.Errorf("state = %+v, want slide 0 of 1", state)
	}

	sess, err := s.Sessions().GetByID(a.SessionID())
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.SlideCount != 1 {
		t.Errorf("session slide count = %d, want 1", sess.SlideCount)
	}
}

func TestApp_ClassifierSettingsPersist(t *testing.T) {
	s := newTestStore(t)
	a, _ := newTestApp(t, s, newTestRig(t, nil).ctrl)

	cfg := gesture.Config{SwipeThresholdPx: 75, Cooldown: 1200 * time.Millisecond, MinConfidence: 0.4}
	if err := a.UpdateClassifierConfig(cfg); err != nil {
		t.Fatalf("UpdateClassifierConfig() error = %v", err)
	}
	if err := a.UpdateClassifierConfig(gesture.Config{MinConfidence: -1}); err == nil {
		t.Error("invalid config should be rejected")
	}

	// A new session on the same store picks the settings up.
	b, _ := newTestApp(t, s, newTestRig(t, nil).ctrl)
	if got := b.Controller().ClassifierConfig(); got != cfg {
		t.Errorf("restored config = %+v, want %+v", got, cfg)
	}
}

func TestApp_CloseEndsSession(t *testing.T) {
	s := newTestStore(t)
	a, _ := newTestApp(t, s, nil)

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	sess, err := s.Sessions().GetByID(a.SessionID())
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.EndedAt == nil {
		t.Error("session should be ended")
	}
	if sess.Deck != "talk.md" || sess.SlideCount != 3 {
		t.Errorf("session = %+v", sess)
	}
}

func TestSeedBindings(t *testing.T) {
	s := newTestStore(t)
	defaults := map[string]config.PluginAction{
		"next":     {Plugin: "keyboard", Action: "next"},
		"previous": {Plugin: "keyboard"},
		"bogus":    {Plugin: "keyboard", Action: "next"},
	}

	n, err := SeedBindings(s, defaults)
	if err != nil {
		t.Fatalf("SeedBindings() error = %v", err)
	}
	if n != 2 {
		t.Errorf("seeded %d bindings, want 2", n)
	}

	// A populated table is left alone.
	n, err = SeedBindings(s, defaults)
	if err != nil || n != 0 {
		t.Errorf("second SeedBindings() = %d, %v, want 0, nil", n, err)
	}

	src := PluginBindings(s)
	got, err := src.BindingsFor("previous")
	if err != nil {
		t.Fatalf("BindingsFor() error = %v", err)
	}
	if len(got) != 1 || got[0].Plugin != "keyboard" || got[0].Action != "previous" {
		t.Errorf("BindingsFor(previous) = %+v", got)
	}
	if got, _ := src.BindingsFor("first"); len(got) != 0 {
		t.Errorf("BindingsFor(first) = %+v, want none", got)
	}
}
