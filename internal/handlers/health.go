package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessChecker reports whether a backing dependency can serve traffic.
type ReadinessChecker func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks map[string]ReadinessChecker
}

// NewHealthHandler constructs a HealthHandler with named dependency checks.
func NewHealthHandler(checks map[string]ReadinessChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Live always reports healthy while the process is running.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready probes each dependency with a short timeout.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": results,
	})
}
