// Package monitor consumes a lab board's serial output, separating
// checksummed scheduler status frames from free-form menu text and keeping
// per-task firing statistics across reports.
package monitor

import (
	"bufio"
	"io"
	"sync"

	"tickmux/protocol"
)

// TaskStats aggregates one task's firing history across reports.
type TaskStats struct {
	Total   uint32  // cumulative firings as of the last report
	PerSec  float64 // firing rate between the last two reports
	Touched bool    // seen in at least one report
}

// Stats is a snapshot of everything the monitor has observed.
type Stats struct {
	Reports   uint64
	BadFrames uint64
	TextLines uint64
	Resets    uint64 // uptime regressions, i.e. board restarts
	UptimeMS  uint64
	Ticks     uint32
	Tasks     []TaskStats
}

// Monitor scans a board's line stream. Callbacks fire from Run's goroutine;
// Stats may be read from any goroutine.
type Monitor struct {
	scanner *bufio.Scanner

	// OnReport, if set, is called for every valid status frame.
	OnReport func(*protocol.Report)

	// OnText, if set, is called for every non-frame line (menu output).
	OnText func(string)

	mu    sync.Mutex
	stats Stats
	prev  *protocol.Report
}

// New wraps a board's output stream. The caller owns the reader; closing
// the underlying port ends Run.
func New(r io.Reader) *Monitor {
	return &Monitor{scanner: bufio.NewScanner(r)}
}

// Run consumes lines until the stream ends. Returns the scanner error, or
// nil on a clean EOF (port closed).
func (m *Monitor) Run() error {
	for m.scanner.Scan() {
		line := m.scanner.Text()

		if !protocol.IsFrame(line) {
			m.mu.Lock()
			m.stats.TextLines++
			m.mu.Unlock()
			if m.OnText != nil {
				m.OnText(line)
			}
			continue
		}

		report, err := protocol.ParseFrame(line)
		if err != nil {
			m.mu.Lock()
			m.stats.BadFrames++
			m.mu.Unlock()
			continue
		}

		m.record(report)
		if m.OnReport != nil {
			m.OnReport(report)
		}
	}
	return m.scanner.Err()
}

func (m *Monitor) record(r *protocol.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prev != nil && r.UptimeMS < m.prev.UptimeMS {
		// Uptime went backwards: the board reset between reports.
		m.stats.Resets++
		m.prev = nil
	}

	m.stats.Reports++
	m.stats.UptimeMS = r.UptimeMS
	m.stats.Ticks = r.Ticks

	for len(m.stats.Tasks) < len(r.Fired) {
		m.stats.Tasks = append(m.stats.Tasks, TaskStats{})
	}

	for i, total := range r.Fired {
		ts := &m.stats.Tasks[i]
		if m.prev != nil && i < len(m.prev.Fired) && r.UptimeMS > m.prev.UptimeMS {
			delta := total - m.prev.Fired[i]
			elapsed := float64(r.UptimeMS-m.prev.UptimeMS) / 1000.0
			ts.PerSec = float64(delta) / elapsed
		}
		ts.Total = total
		ts.Touched = true
	}

	m.prev = r
}

// Stats returns a copy of the accumulated statistics.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.stats
	out.Tasks = append([]TaskStats(nil), m.stats.Tasks...)
	return out
}
