package monitor

import (
	"fmt"
	"time"
)

// Thresholds are the limits the insight rules compare against.
type Thresholds struct {
	PageLoad      time.Duration
	MemoryPercent float64
	RTT           time.Duration
	ErrorCount    int
}

// DefaultThresholds returns the standard limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PageLoad:      3 * time.Second,
		MemoryPercent: 80,
		RTT:           100 * time.Millisecond,
		ErrorCount:    5,
	}
}

// Insight is a threshold rule that fired.
type Insight struct {
	Kind     string  `json:"type"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value"`
	Limit    float64 `json:"limit"`
}

// Evaluate runs every rule against snap and the error count. Rules are
// stateless; the same inputs always yield the same insights.
func Evaluate(snap Snapshot, errorCount int, t Thresholds) []Insight {
	var out []Insight

	if snap.PageLoad != nil {
		limit := float64(t.PageLoad) / float64(time.Millisecond)
		if snap.PageLoad.LoadMillis > limit {
			out = append(out, Insight{
				Kind:     "performance",
				Severity: "warning",
				Message:  fmt.Sprintf("page load took %.0f ms, above %.0f ms", snap.PageLoad.LoadMillis, limit),
				Value:    snap.PageLoad.LoadMillis,
				Limit:    limit,
			})
		}
	}

	if snap.Memory != nil {
		if pct := snap.Memory.UsagePercent(); pct > t.MemoryPercent {
			out = append(out, Insight{
				Kind:     "memory",
				Severity: "warning",
				Message:  fmt.Sprintf("memory usage at %.1f%%, above %.0f%%", pct, t.MemoryPercent),
				Value:    pct,
				Limit:    t.MemoryPercent,
			})
		}
	}

	if snap.Network != nil {
		limit := float64(t.RTT) / float64(time.Millisecond)
		if snap.Network.RTTMillis > limit {
			out = append(out, Insight{
				Kind:     "network",
				Severity: "info",
				Message:  fmt.Sprintf("network round trip %.0f ms, above %.0f ms", snap.Network.RTTMillis, limit),
				Value:    snap.Network.RTTMillis,
				Limit:    limit,
			})
		}
	}

	if errorCount > t.ErrorCount {
		out = append(out, Insight{
			Kind:     "errors",
			Severity: "critical",
			Message:  fmt.Sprintf("%d errors tracked, above %d", errorCount, t.ErrorCount),
			Value:    float64(errorCount),
			Limit:    float64(t.ErrorCount),
		})
	}
	return out
}
