package scheduler

import (
	"sync/atomic"
	"time"
)

// SweepMetrics are in-process counters logged by the reporter.
type SweepMetrics struct {
	sweeps      atomic.Int64
	campaigns   atomic.Int64
	sent        atomic.Int64
	failed      atomic.Int64
	paused      atomic.Int64
	completed   atomic.Int64
	resumed     atomic.Int64
	errors      atomic.Int64
	lockSkipped atomic.Int64
	durationNs  atomic.Int64
	startedNs   int64
}

func NewSweepMetrics() *SweepMetrics {
	return &SweepMetrics{startedNs: time.Now().UnixNano()}
}

func (m *SweepMetrics) RecordSweep(d time.Duration) {
	m.sweeps.Add(1)
	m.durationNs.Add(int64(d))
}

func (m *SweepMetrics) GetStats() map[string]interface{} {
	sweeps := m.sweeps.Load()
	avg := time.Duration(0)
	if sweeps > 0 {
		avg = time.Duration(m.durationNs.Load() / sweeps)
	}
	return map[string]interface{}{
		"sweeps":         sweeps,
		"campaigns":      m.campaigns.Load(),
		"sent":           m.sent.Load(),
		"failed":         m.failed.Load(),
		"paused":         m.paused.Load(),
		"completed":      m.completed.Load(),
		"resumed":        m.resumed.Load(),
		"errors":         m.errors.Load(),
		"lock_skipped":   m.lockSkipped.Load(),
		"avg_sweep_ms":   avg.Milliseconds(),
		"uptime_seconds": time.Since(time.Unix(0, m.startedNs)).Seconds(),
	}
}
