package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics captures pipeline counters shared by the sampler, the bus and the
// gateway. All methods are safe for concurrent use; a nil *Metrics is a no-op.
type Metrics struct {
	ticks         atomic.Int64
	lateTicks     atomic.Int64
	maxLatenessNs atomic.Int64
	readErrors    atomic.Int64
	published     atomic.Int64
	dropped       atomic.Int64
	overruns      atomic.Int64
	connections   atomic.Int64
	accepted      atomic.Int64
	rejected      atomic.Int64
	transitions   atomic.Int64
}

// Snapshot provides a consistent-enough view of the current counters.
type Snapshot struct {
	Ticks             int64   `json:"ticks"`
	LateTicks         int64   `json:"lateTicks"`
	MaxLatenessMillis float64 `json:"maxLatenessMs"`
	ReadErrors        int64   `json:"readErrors"`
	Published         int64   `json:"published"`
	Dropped           int64   `json:"dropped"`
	Overruns          int64   `json:"overruns"`
	Connections       int64   `json:"connections"`
	Accepted          int64   `json:"accepted"`
	Rejected          int64   `json:"rejected"`
	Transitions       int64   `json:"sessionTransitions"`
}

func New() *Metrics {
	return &Metrics{}
}

// RecordTick counts a sampler tick; lateness is how far past its scheduled
// start the tick began.
func (m *Metrics) RecordTick(lateness time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Add(1)
	if lateness <= 0 {
		return
	}
	m.lateTicks.Add(1)
	ns := int64(lateness)
	for {
		cur := m.maxLatenessNs.Load()
		if ns <= cur || m.maxLatenessNs.CompareAndSwap(cur, ns) {
			return
		}
	}
}

func (m *Metrics) RecordReadError() {
	if m != nil {
		m.readErrors.Add(1)
	}
}

func (m *Metrics) RecordPublish() {
	if m != nil {
		m.published.Add(1)
	}
}

func (m *Metrics) RecordDrop() {
	if m != nil {
		m.dropped.Add(1)
	}
}

func (m *Metrics) RecordOverrun() {
	if m != nil {
		m.overruns.Add(1)
	}
}

func (m *Metrics) RecordTransition() {
	if m != nil {
		m.transitions.Add(1)
	}
}

// ConnectionOpened and ConnectionClosed track live gateway connections.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Add(1)
		m.accepted.Add(1)
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Add(-1)
	}
}

func (m *Metrics) ConnectionRejected() {
	if m != nil {
		m.rejected.Add(1)
	}
}

// ReadErrors returns the total number of failed source reads.
func (m *Metrics) ReadErrors() int64 {
	if m == nil {
		return 0
	}
	return m.readErrors.Load()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Ticks:             m.ticks.Load(),
		LateTicks:         m.lateTicks.Load(),
		MaxLatenessMillis: float64(m.maxLatenessNs.Load()) / float64(time.Millisecond),
		ReadErrors:        m.readErrors.Load(),
		Published:         m.published.Load(),
		Dropped:           m.dropped.Load(),
		Overruns:          m.overruns.Load(),
		Connections:       m.connections.Load(),
		Accepted:          m.accepted.Load(),
		Rejected:          m.rejected.Load(),
		Transitions:       m.transitions.Load(),
	}
}
