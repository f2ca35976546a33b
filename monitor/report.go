package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"time"
)

// Session describes the monitored process.
type Session struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	GeneratedAt time.Time `json:"generatedAt"`
	GoVersion   string    `json:"goVersion"`
	OS          string    `json:"os"`
	Arch        string    `json:"arch"`
	NumCPU      int       `json:"numCpu"`
}

// Report is the diagnostic export.
type Report struct {
	Session      Session        `json:"session"`
	Metrics      *Snapshot      `json:"metrics"`
	DataPoints   []Snapshot     `json:"dataPoints"`
	Errors       []TrackedError `json:"errors"`
	Interactions []Interaction  `json:"interactions"`
	Insights     []Insight      `json:"insights"`
}

// Report assembles the diagnostic export.
func (m *Monitor) Report() Report {
	r := Report{
		Session: Session{
			ID:          m.sessionID,
			StartedAt:   m.startedAt,
			GeneratedAt: m.now(),
			GoVersion:   runtime.Version(),
			OS:          runtime.GOOS,
			Arch:        runtime.GOARCH,
			NumCPU:      runtime.NumCPU(),
		},
		DataPoints:   m.DataPoints(),
		Errors:       m.Errors(),
		Interactions: m.Interactions(),
		Insights:     m.Insights(),
	}
	if latest, ok := m.Latest(); ok {
		r.Metrics = &latest
	}
	return r
}

// WriteReport encodes the diagnostic export as indented JSON.
func (m *Monitor) WriteReport(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.Report()); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
