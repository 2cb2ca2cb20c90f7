// Package metrics exposes Prometheus collectors for mounted liquid fields.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "liquidfield"

// Fallback reasons
const (
	ReasonLoad    = "load"
	ReasonBackend = "backend"
)

// Metrics groups the collectors of one process
type Metrics struct {
	frames       prometheus.Counter
	liveImpulses prometheus.Gauge
	mounts       prometheus.Gauge
	fallbacks    *prometheus.CounterVec
	frameSeconds prometheus.Histogram
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames rendered across all mounted fields.",
		}),
		liveImpulses: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_impulses",
			Help:      "Impulses alive on the trail after the last frame.",
		}),
		mounts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mounts_active",
			Help:      "Background instances currently holding a render session.",
		}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Mounts that ended on the static fallback background.",
		}, []string{"reason"}),
		frameSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_seconds",
			Help:      "Wall time spent producing one frame.",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066},
		}),
	}
}

// FrameRendered records one frame and the trail length after it
func (m *Metrics) FrameRendered(took time.Duration, live int) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.liveImpulses.Set(float64(live))
	m.frameSeconds.Observe(took.Seconds())
}

// SessionStarted marks a render session as active
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.mounts.Inc()
}

// SessionEnded marks a render session as released
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.mounts.Dec()
}

// Fallback counts a mount that ended on the static background
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}
