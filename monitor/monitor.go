// Package monitor samples runtime and page metrics on an interval and derives
// threshold insights from the latest reading.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultInterval        = time.Second
	DefaultMaxDataPoints   = 1000
	DefaultMaxErrors       = 100
	DefaultMaxInteractions = 50
)

// Config controls sampling and log bounds.
type Config struct {
	Interval        time.Duration
	MaxDataPoints   int
	MaxErrors       int
	MaxInteractions int
	Thresholds      Thresholds
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        DefaultInterval,
		MaxDataPoints:   DefaultMaxDataPoints,
		MaxErrors:       DefaultMaxErrors,
		MaxInteractions: DefaultMaxInteractions,
		Thresholds:      DefaultThresholds(),
	}
}

// TrackedError is an entry of the error log.
type TrackedError struct {
	Category  string            `json:"category"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// Interaction is an entry of the interaction log.
type Interaction struct {
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Monitor owns the sampling loop and the bounded logs.
type Monitor struct {
	cfg       Config
	source    Source
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	sessionID string
	startedAt time.Time

	mu           sync.Mutex
	points       *ring[Snapshot]
	latest       *Snapshot
	errLog       *ring[TrackedError]
	interactions *ring[Interaction]
	cancel       context.CancelFunc
	done         chan struct{}
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithMetrics mirrors samples into m.
func WithMetrics(m *Metrics) Option {
	return func(mon *Monitor) { mon.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(mon *Monitor) {
		if logger != nil {
			mon.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(mon *Monitor) {
		if now != nil {
			mon.now = now
		}
	}
}

// New builds a monitor reading from source.
func New(source Source, cfg Config, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxDataPoints <= 0 {
		cfg.MaxDataPoints = def.MaxDataPoints
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = def.MaxErrors
	}
	if cfg.MaxInteractions <= 0 {
		cfg.MaxInteractions = def.MaxInteractions
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}

	m := &Monitor{
		cfg:          cfg,
		source:       source,
		logger:       slog.Default(),
		now:          time.Now,
		sessionID:    uuid.NewString(),
		points:       newRing[Snapshot](cfg.MaxDataPoints),
		errLog:       newRing[TrackedError](cfg.MaxErrors),
		interactions: newRing[Interaction](cfg.MaxInteractions),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.startedAt = m.now()
	return m
}

// SessionID identifies this monitor in diagnostic reports.
func (m *Monitor) SessionID() string {
	return m.sessionID
}

// Start launches the sampling loop. It samples once immediately and then on
// every tick until Stop or ctx cancellation. Starting twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			if _, err := m.SampleOnce(ctx); err != nil && ctx.Err() == nil {
				m.logger.Debug("monitor sample failed", slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// SampleOnce takes one reading and appends it to the data points.
func (m *Monitor) SampleOnce(ctx context.Context) (Snapshot, error) {
	snap, err := m.source.Sample(ctx)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			m.metrics.IncSample("unavailable")
		} else {
			m.metrics.IncSample("error")
		}
		return Snapshot{}, err
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = m.now()
	}

	m.mu.Lock()
	m.points.push(snap)
	m.latest = &snap
	m.mu.Unlock()

	m.metrics.IncSample("ok")
	m.metrics.Observe(snap)
	return snap, nil
}

// Latest returns the most recent snapshot.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return Snapshot{}, false
	}
	return *m.latest, true
}

// DataPoints returns the buffered snapshots, oldest first.
func (m *Monitor) DataPoints() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points.items()
}

// TrackError appends err to the error log under category.
func (m *Monitor) TrackError(category string, err error, fields map[string]string) {
	if err == nil {
		return
	}
	entry := TrackedError{
		Category:  category,
		Message:   err.Error(),
		Timestamp: m.now(),
		Context:   maps.Clone(fields),
	}
	m.mu.Lock()
	m.errLog.push(entry)
	m.mu.Unlock()
	m.metrics.IncError(category)
}

// TrackInteraction appends a user action to the interaction log.
func (m *Monitor) TrackInteraction(category, action string, details map[string]string) {
	entry := Interaction{
		Category:  category,
		Action:    action,
		Timestamp: m.now(),
		Details:   maps.Clone(details),
	}
	m.mu.Lock()
	m.interactions.push(entry)
	m.mu.Unlock()
	m.metrics.IncInteraction(category)
}

// Errors returns the error log, oldest first.
func (m *Monitor) Errors() []TrackedError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errLog.items()
}

// Interactions returns the interaction log, oldest first.
func (m *Monitor) Interactions() []Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interactions.items()
}

// ErrorCounts groups the error log by category.
func (m *Monitor) ErrorCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, e := range m.errLog.items() {
		out[e.Category]++
	}
	return out
}

// Insights evaluates the thresholds against the latest snapshot and the
// current error log.
func (m *Monitor) Insights() []Insight {
	m.mu.Lock()
	var latest Snapshot
	if m.latest != nil {
		latest = *m.latest
	}
	errCount := m.errLog.len()
	m.mu.Unlock()
	return Evaluate(latest, errCount, m.cfg.Thresholds)
}

// Clear empties the data points and logs.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points.reset()
	m.errLog.reset()
	m.interactions.reset()
	m.latest = nil
}
