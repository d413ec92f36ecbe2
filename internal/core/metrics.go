package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes import pipeline counters to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rows        *prometheus.CounterVec
	images      *prometheus.CounterVec
	sessions    *prometheus.CounterVec
	active      prometheus.Gauge
	rowDuration prometheus.Histogram
}

// NewMetrics creates the pipeline collectors and registers them with reg.
// Pass nil to create unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_rows_total",
				Help: "Import rows handled, by outcome.",
			},
			[]string{"outcome"},
		),
		images: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_images_total",
				Help: "Row images fetched, by result.",
			},
			[]string{"result"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "importer_sessions_total",
				Help: "Import sessions that reached a final status.",
			},
			[]string{"status"},
		),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "importer_sessions_active",
			Help: "Import sessions whose driver is currently running.",
		}),
		rowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "importer_row_duration_seconds",
			Help:    "Time spent processing a single import row.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.rows, m.images, m.sessions, m.active, m.rowDuration)
	}
	return m
}

func (m *Metrics) observeRow(out RowOutcome, d time.Duration) {
	if m == nil {
		return
	}
	switch {
	case out.Success:
		m.rows.WithLabelValues("success").Inc()
	case out.Skipped:
		m.rows.WithLabelValues("skipped").Inc()
	default:
		m.rows.WithLabelValues("failed").Inc()
	}
	if out.ImagesDownloaded > 0 {
		m.images.WithLabelValues("downloaded").Add(float64(out.ImagesDownloaded))
	}
	if out.ImagesFailed > 0 {
		m.images.WithLabelValues("failed").Add(float64(out.ImagesFailed))
	}
	m.rowDuration.Observe(d.Seconds())
}

func (m *Metrics) driverStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) driverStopped(status SessionStatus) {
	if m == nil {
		return
	}
	m.active.Dec()
	if status.Terminal() {
		m.sessions.WithLabelValues(string(status)).Inc()
	}
}
