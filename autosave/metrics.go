package autosave

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the auto-save controller.
type Metrics struct {
	Registry      *prometheus.Registry
	SavesTotal    *prometheus.CounterVec
	SaveDuration  prometheus.Histogram
	RetriesTotal  prometheus.Counter
	ErrorsTotal   *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	DroppedTotal  prometheus.Counter
	FlushedTotal  prometheus.Counter
	ConflictTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	saves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosave_saves_total",
			Help: "Save outcomes by result.",
		},
		[]string{"result"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autosave_save_duration_seconds",
			Help:    "Latency of a single save attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autosave_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autosave_errors_total",
			Help: "Total number of failed save attempts by type.",
		},
		[]string{"error_type"},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autosave_offline_queue_depth",
			Help: "Payloads waiting in the offline queue.",
		},
	)
	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autosave_offline_queue_dropped_total",
			Help: "Queued payloads discarded after exhausting retries.",
		},
	)
	flushed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autosave_offline_queue_flushed_total",
			Help: "Queued payloads saved during a flush.",
		},
	)
	conflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autosave_conflicts_total",
			Help: "Saves suspended because the remote copy was newer.",
		},
	)

	registry.MustRegister(saves, duration, retries, errorsTotal, queueDepth, dropped, flushed, conflicts)

	return &Metrics{
		Registry:      registry,
		SavesTotal:    saves,
		SaveDuration:  duration,
		RetriesTotal:  retries,
		ErrorsTotal:   errorsTotal,
		QueueDepth:    queueDepth,
		DroppedTotal:  dropped,
		FlushedTotal:  flushed,
		ConflictTotal: conflicts,
	}
}

// IncSave increments the saves counter for a result label.
func (m *Metrics) IncSave(result string) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(result).Inc()
}

// ObserveDuration records a save attempt duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.SaveDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// SetQueueDepth records the current offline queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// IncDropped increments the dropped queue items counter.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.DroppedTotal.Inc()
}

// IncFlushed increments the flushed queue items counter.
func (m *Metrics) IncFlushed() {
	if m == nil {
		return
	}
	m.FlushedTotal.Inc()
}

// IncConflict increments the conflicts counter.
func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.ConflictTotal.Inc()
}
