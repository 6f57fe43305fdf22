package bus

import (
	"sync"
	"time"

	"github.com/openhaus/automate/track"
)

// ListenerMetrics is the mutable per-listener aggregate. It is updated in
// place after every invocation and never reset; counters only grow. One
// record lives as long as its listener - records are deliberately not
// recreated per event.
type ListenerMetrics struct {
	mu sync.Mutex

	total      uint64
	success    uint64
	failure    uint64
	diFailure  uint64
	cancelled  uint64
	suppressed uint64

	totalDuration time.Duration
	minDuration   time.Duration
	maxDuration   time.Duration

	lastInvokedAt time.Time
	lastErrorMsg  string
	lastErrorType string
}

// MetricsSnapshot is the read-only view handed to external consumers.
type MetricsSnapshot struct {
	Total      uint64
	Success    uint64
	Failure    uint64
	DIFailure  uint64
	Cancelled  uint64
	Suppressed uint64

	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	AvgDuration   time.Duration

	LastInvokedAt time.Time
	LastErrorMsg  string
	LastErrorType string
}

func (m *ListenerMetrics) record(res track.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.lastInvokedAt = time.Now()
	switch res.Outcome {
	case track.OutcomeSuccess:
		m.success++
	case track.OutcomeError:
		m.failure++
	case track.OutcomeDIFailure:
		m.diFailure++
	case track.OutcomeCancelled:
		m.cancelled++
	}
	if res.Err != nil {
		m.lastErrorMsg = res.Err.Error()
		m.lastErrorType = res.Outcome.String()
	}

	m.totalDuration += res.Duration
	if m.minDuration == 0 || res.Duration < m.minDuration {
		m.minDuration = res.Duration
	}
	if res.Duration > m.maxDuration {
		m.maxDuration = res.Duration
	}
}

func (m *ListenerMetrics) recordSuppressed() {
	m.mu.Lock()
	m.suppressed++
	m.mu.Unlock()
}

// Snapshot returns a consistent copy of the aggregates.
func (m *ListenerMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		Total:         m.total,
		Success:       m.success,
		Failure:       m.failure,
		DIFailure:     m.diFailure,
		Cancelled:     m.cancelled,
		Suppressed:    m.suppressed,
		TotalDuration: m.totalDuration,
		MinDuration:   m.minDuration,
		MaxDuration:   m.maxDuration,
		LastInvokedAt: m.lastInvokedAt,
		LastErrorMsg:  m.lastErrorMsg,
		LastErrorType: m.lastErrorType,
	}
	if m.total > 0 {
		s.AvgDuration = m.totalDuration / time.Duration(m.total)
	}
	return s
}
