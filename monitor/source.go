package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// ErrUnavailable reports that a metric cannot be collected in this
// environment. It is never fatal.
var ErrUnavailable = errors.New("monitor: metric unavailable")

// Memory is a heap usage reading.
type Memory struct {
	UsedBytes  uint64 `json:"usedBytes"`
	TotalBytes uint64 `json:"totalBytes"`
	LimitBytes uint64 `json:"limitBytes"`
}

// UsagePercent returns used/limit as a percentage.
func (m Memory) UsagePercent() float64 {
	if m.LimitBytes == 0 {
		return 0
	}
	return float64(m.UsedBytes) / float64(m.LimitBytes) * 100
}

// Network is a connectivity reading.
type Network struct {
	RTTMillis     float64 `json:"rttMs"`
	EffectiveType string  `json:"effectiveType,omitempty"`
}

// PageLoad holds timings reported by the host for the current view.
type PageLoad struct {
	LoadMillis             float64 `json:"loadMs"`
	DOMContentLoadedMillis float64 `json:"domContentLoadedMs,omitempty"`
	FirstPaintMillis       float64 `json:"firstPaintMs,omitempty"`
}

// Snapshot is one data point. Nil sections were unavailable.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Memory    *Memory   `json:"memory,omitempty"`
	Network   *Network  `json:"network,omitempty"`
	PageLoad  *PageLoad `json:"pageLoad,omitempty"`
}

// Source produces snapshots for the sampling loop.
type Source interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// ProbeFunc measures a round trip.
type ProbeFunc func(ctx context.Context) (time.Duration, error)

// RuntimeSource samples Go runtime memory, an optional network probe and
// page-load timings pushed by the host.
type RuntimeSource struct {
	Probe ProbeFunc
	Now   func() time.Time

	mu       sync.Mutex
	pageLoad *PageLoad
}

// SetPageLoad records the timings of the latest page view.
func (s *RuntimeSource) SetPageLoad(p PageLoad) {
	s.mu.Lock()
	s.pageLoad = &p
	s.mu.Unlock()
}

// Sample reads every available metric. It returns ErrUnavailable only when
// nothing at all could be read.
func (s *RuntimeSource) Sample(ctx context.Context) (Snapshot, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	snap := Snapshot{Timestamp: now()}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	mem := &Memory{UsedBytes: ms.HeapAlloc, TotalBytes: ms.Sys, LimitBytes: ms.Sys}
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		mem.LimitBytes = uint64(limit)
	}
	snap.Memory = mem

	if s.Probe != nil {
		rtt, err := s.Probe(ctx)
		if err == nil {
			snap.Network = &Network{RTTMillis: float64(rtt) / float64(time.Millisecond), EffectiveType: effectiveType(rtt)}
		} else if !errors.Is(err, ErrUnavailable) {
			return snap, fmt.Errorf("network probe: %w", err)
		}
	}

	s.mu.Lock()
	if s.pageLoad != nil {
		p := *s.pageLoad
		snap.PageLoad = &p
	}
	s.mu.Unlock()

	return snap, nil
}

// effectiveType buckets a round trip the way connection-quality hints do.
func effectiveType(rtt time.Duration) string {
	switch {
	case rtt < 100*time.Millisecond:
		return "4g"
	case rtt < 300*time.Millisecond:
		return "3g"
	case rtt < 1400*time.Millisecond:
		return "2g"
	default:
		return "slow-2g"
	}
}

// HTTPProbe returns a ProbeFunc timing a HEAD request to url.
func HTTPProbe(client *http.Client, url string) ProbeFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (time.Duration, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return 0, fmt.Errorf("build probe: %w", err)
		}
		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return time.Since(start), nil
	}
}
