package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FramesRead.Inc()
	m.FramesRead.Inc()
	m.CycleErrors.Inc()
	m.Gestures.WithLabelValues("swipe-right").Inc()
	m.Navigations.WithLabelValues("keyboard").Add(3)

	if got := testutil.ToFloat64(m.FramesRead); got != 2 {
		t.Errorf("frames read = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CycleErrors); got != 1 {
		t.Errorf("cycle errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Gestures.WithLabelValues("swipe-right")); got != 1 {
		t.Errorf("swipe-right = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Navigations.WithLabelValues("keyboard")); got != 3 {
		t.Errorf("keyboard navigations = %v, want 3", got)
	}
}

func TestMetrics_SetActive(t *testing.T) {
	m := New()

	m.SetActive(true)
	if got := testutil.ToFloat64(m.DetectionActive); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	m.SetActive(false)
	if got := testutil.ToFloat64(m.DetectionActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveEstimate(25 * time.Millisecond)
	m.Gestures.WithLabelValues("swipe-left").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"airdeck_estimate_duration_seconds_count 1",
		`airdeck_gestures_total{gesture="swipe-left"} 1`,
		"airdeck_frames_read_total 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Each instance owns its registry, so creating two must not panic.
	a, b := New(), New()
	a.FramesRead.Inc()
	if testutil.ToFloat64(b.FramesRead) != 0 {
		t.Error("metrics instances should not share collectors")
	}
}
