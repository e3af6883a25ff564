package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker backs the /healthz and /readyz probes. Readiness is a
// single switch flipped by main once recovery and replay complete;
// MarkUnready lets shutdown pull the service out of rotation before the
// listeners close.
type HealthChecker struct {
	mu        sync.RWMutex
	ready     bool
	readyAt   time.Time
	startTime time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{startTime: time.Now()}
}

// SetReady flips the readiness switch.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ready && !h.ready {
		h.readyAt = time.Now()
	}
	h.ready = ready
}

// IsReady reports whether the service is accepting traffic.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// LivenessHandler answers 200 whenever the process is up.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler answers 200 once recovery is complete and the service
// is serving, 503 before that and during shutdown.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready, readyAt := h.ready, h.readyAt
	h.mu.RUnlock()

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"ready_at": readyAt.Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
