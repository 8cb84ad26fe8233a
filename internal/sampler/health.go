package sampler

import (
	"sync"
	"time"
)

// HealthStatus summarizes how reliably the source has been read lately.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// DefaultFailureThreshold is one second of consecutive failed reads at 60 Hz.
// A tenth of the threshold marks the source degraded.
const DefaultFailureThreshold = 60

// Health is a point-in-time view of the source's read health.
type Health struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	TotalFailures       int64        `json:"totalFailures"`
	LastError           string       `json:"lastError,omitempty"`
	LastFailure         time.Time    `json:"lastFailure,omitempty"`
}

// sourceHealth tracks consecutive read failures. poll() writes it from the
// sampler goroutine while the gateway reads snapshots for /health.
type sourceHealth struct {
	mu                sync.Mutex
	threshold         int
	consecutive       int
	total             int64
	lastErr           string
	lastFail          time.Time
	lastEmittedStatus HealthStatus
}

func newSourceHealth(threshold int) *sourceHealth {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &sourceHealth{threshold: threshold, lastEmittedStatus: StatusHealthy}
}

func (h *sourceHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutive = 0
}

func (h *sourceHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutive++
	h.total++
	h.lastErr = err.Error()
	h.lastFail = time.Now()
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *sourceHealth) statusLocked() HealthStatus {
	switch {
	case h.consecutive >= h.threshold:
		return StatusFailed
	case h.consecutive >= max(1, h.threshold/10):
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *sourceHealth) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *sourceHealth) snapshotLocked() Health {
	return Health{
		Status:              h.statusLocked(),
		ConsecutiveFailures: h.consecutive,
		TotalFailures:       h.total,
		LastError:           h.lastErr,
		LastFailure:         h.lastFail,
	}
}

// snapshotAndEmit returns the current health and whether the status changed
// since the last call that reported a change.
func (h *sourceHealth) snapshotAndEmit() (Health, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := h.snapshotLocked()
	changed := snap.Status != h.lastEmittedStatus
	if changed {
		h.lastEmittedStatus = snap.Status
	}
	return snap, changed
}
