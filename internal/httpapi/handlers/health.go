package handlers

import (
	"context"
	"net/http"
	"time"
)

// SweepTimer is the subset of *pkg/health.Checker the liveness probe needs.
type SweepTimer interface {
	LastSweep() time.Time
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	checker   SweepTimer
	reachable func(ctx context.Context) error
	startTime time.Time
}

// NewHealthHandler constructs a HealthHandler. reachable performs a cheap
// store read and returns its error, used to report PersistentStore
// reachability without forcing HealthHandler to depend on the full
// pkg/store.Store interface.
func NewHealthHandler(checker SweepTimer, reachable func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{checker: checker, reachable: reachable, startTime: time.Now()}
}

// Health reports liveness: process uptime, the HealthChecker's last
// completed sweep, and whether the store answered a probe read.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	storeOK := true
	storeError := ""
	if err := h.reachable(r.Context()); err != nil {
		storeOK = false
		storeError = err.Error()
	}

	lastSweep := h.checker.LastSweep()
	body := map[string]interface{}{
		"status":       "ok",
		"uptime":       time.Since(h.startTime).String(),
		"store_ok":     storeOK,
		"last_sweep":   lastSweep,
		"sweep_pending": lastSweep.IsZero(),
	}
	if storeError != "" {
		body["store_error"] = storeError
	}

	SendSuccess(w, r, body)
}
