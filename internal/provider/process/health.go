package process

import (
	"sync"
)

// HealthStatus summarises how the process listing has been doing.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// listHealth counts consecutive listing failures. Polls write it from the
// provider goroutine while Health reads it from elsewhere.
type listHealth struct {
	mu          sync.Mutex
	failures    int
	lastErr     string
	lastEmitted HealthStatus
}

func newListHealth() *listHealth {
	return &listHealth{lastEmitted: StatusHealthy}
}

func (h *listHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastErr = ""
}

func (h *listHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err.Error()
}

// statusLocked computes the status. Caller must hold h.mu.
func (h *listHealth) statusLocked(threshold int) HealthStatus {
	switch {
	case h.failures >= threshold:
		return StatusFailed
	case h.failures > 0:
		return StatusDegraded
	}
	return StatusHealthy
}

// transition returns the current status and whether it differs from the
// last one reported.
func (h *listHealth) transition(threshold int) (HealthStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := h.statusLocked(threshold)
	changed := status != h.lastEmitted
	h.lastEmitted = status
	return status, changed
}

// Health is a point-in-time copy of the listing health.
type Health struct {
	Status   HealthStatus `json:"status"`
	Failures int          `json:"failures"`
	LastErr  string       `json:"lastError,omitempty"`
}

func (h *listHealth) snapshot(threshold int) Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{Status: h.statusLocked(threshold), Failures: h.failures, LastErr: h.lastErr}
}
