package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthChecker pings both store principals. Either failing marks the
// process unhealthy, since both are required for the service to do
// useful work (validate and admin respectively).
type HealthChecker struct {
	validatorStore apikey.Store
	managerStore   apikey.Store
	timeout        time.Duration
}

// NewHealthChecker builds a HealthChecker bound to both principals.
func NewHealthChecker(validatorStore, managerStore apikey.Store) *HealthChecker {
	return &HealthChecker{validatorStore: validatorStore, managerStore: managerStore, timeout: 2 * time.Second}
}

func (h *HealthChecker) check(ctx context.Context) (bool, map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := make(map[string]string, 2)
	healthy := true

	if err := h.validatorStore.Ping(ctx); err != nil {
		checks["store.validator"] = err.Error()
		healthy = false
	} else {
		checks["store.validator"] = "ok"
	}

	if err := h.managerStore.Ping(ctx); err != nil {
		checks["store.manager"] = err.Error()
		healthy = false
	} else {
		checks["store.manager"] = "ok"
	}

	return healthy, checks
}

// Handler serves GET /health.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy, checks := h.check(r.Context())
		status := http.StatusOK
		resp := HealthResponse{Status: "healthy", Checks: checks}
		if !healthy {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
