// Package metrics exposes detection and navigation counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "airdeck"

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	FramesRead      prometheus.Counter
	FramesSkipped   prometheus.Counter
	FramesEstimated prometheus.Counter
	CycleErrors     prometheus.Counter
	Gestures        *prometheus.CounterVec
	Navigations     *prometheus.CounterVec
	EstimateLatency prometheus.Histogram
	DetectionActive prometheus.Gauge
	CurrentSlide    prometheus.Gauge
	LiveClients     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		FramesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_read_total",
			Help:      "Frames read from the camera",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames skipped by motion gating",
		}),
		FramesEstimated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_estimated_total",
			Help:      "Frames sent through pose estimation",
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Detection cycles that failed and were skipped",
		}),
		Gestures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gestures_total",
			Help:      "Gestures emitted by the classifier",
		}, []string{"gesture"}),
		Navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Slide changes by source",
		}, []string{"source"}),
		EstimateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimate_duration_seconds",
			Help:      "Pose estimation latency",
			Buckets:   []float64{.005, .01, .02, .033, .05, .1, .2, .5, 1},
		}),
		DetectionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detection_active",
			Help:      "1 while the detection loop is running",
		}),
		CurrentSlide: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_slide",
			Help:      "Zero-based index of the current slide",
		}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Connected live status websocket clients",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FramesRead,
		m.FramesSkipped,
		m.FramesEstimated,
		m.CycleErrors,
		m.Gestures,
		m.Navigations,
		m.EstimateLatency,
		m.DetectionActive,
		m.CurrentSlide,
		m.LiveClients,
	)
	return m
}

// ObserveEstimate records the duration of one estimator call.
func (m *Metrics) ObserveEstimate(d time.Duration) {
	m.EstimateLatency.Observe(d.Seconds())
}

// SetActive records whether detection is running.
func (m *Metrics) SetActive(active bool) {
	if active {
		m.DetectionActive.Set(1)
	} else {
		m.DetectionActive.Set(0)
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
