package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the latest snapshot as Prometheus gauges.
type Metrics struct {
	Registry          *prometheus.Registry
	MemoryUsedBytes   prometheus.Gauge
	MemoryUsageRatio  prometheus.Gauge
	NetworkRTTSeconds prometheus.Gauge
	PageLoadSeconds   prometheus.Gauge
	SamplesTotal      *prometheus.CounterVec
	TrackedErrors     *prometheus.CounterVec
	Interactions      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	memUsed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_memory_used_bytes",
		Help: "Heap bytes in use at the latest sample.",
	})
	memRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_memory_usage_ratio",
		Help: "Heap in use divided by the memory limit.",
	})
	rtt := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_network_rtt_seconds",
		Help: "Round trip measured at the latest sample.",
	})
	pageLoad := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_page_load_seconds",
		Help: "Load time reported for the latest page view.",
	})
	samples := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_samples_total",
		Help: "Sampling attempts by result.",
	}, []string{"result"})
	trackedErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_tracked_errors_total",
		Help: "Errors reported to the monitor by category.",
	}, []string{"category"})
	interactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_interactions_total",
		Help: "User interactions reported to the monitor by category.",
	}, []string{"category"})

	registry.MustRegister(memUsed, memRatio, rtt, pageLoad, samples, trackedErrors, interactions)

	return &Metrics{
		Registry:          registry,
		MemoryUsedBytes:   memUsed,
		MemoryUsageRatio:  memRatio,
		NetworkRTTSeconds: rtt,
		PageLoadSeconds:   pageLoad,
		SamplesTotal:      samples,
		TrackedErrors:     trackedErrors,
		Interactions:      interactions,
	}
}

// Observe updates the gauges from snap.
func (m *Metrics) Observe(snap Snapshot) {
	if m == nil {
		return
	}
	if snap.Memory != nil {
		m.MemoryUsedBytes.Set(float64(snap.Memory.UsedBytes))
		m.MemoryUsageRatio.Set(snap.Memory.UsagePercent() / 100)
	}
	if snap.Network != nil {
		m.NetworkRTTSeconds.Set(snap.Network.RTTMillis / 1000)
	}
	if snap.PageLoad != nil {
		m.PageLoadSeconds.Set(snap.PageLoad.LoadMillis / 1000)
	}
}

// IncSample increments the samples counter for a result label.
func (m *Metrics) IncSample(result string) {
	if m == nil {
		return
	}
	m.SamplesTotal.WithLabelValues(result).Inc()
}

// IncError increments the tracked errors counter.
func (m *Metrics) IncError(category string) {
	if m == nil {
		return
	}
	m.TrackedErrors.WithLabelValues(category).Inc()
}

// IncInteraction increments the interactions counter.
func (m *Metrics) IncInteraction(category string) {
	if m == nil {
		return
	}
	m.Interactions.WithLabelValues(category).Inc()
}
