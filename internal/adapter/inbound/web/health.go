package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/theNullP0inter/odinmcp/internal/port/outbound"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies the web tier's dependencies.
type HealthChecker struct {
	backend outbound.ResultBackend
	version string
}

// NewHealthChecker creates a checker. Pass nil for components that are not
// wired in.
func NewHealthChecker(backend outbound.ResultBackend, version string) *HealthChecker {
	return &HealthChecker{backend: backend, version: version}
}

// Check probes each component.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.backend != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if _, err := h.backend.GetResult(probeCtx, "health-probe"); err != nil {
			checks["result_backend"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["result_backend"] = "ok"
		}
	} else {
		checks["result_backend"] = "not configured"
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler returns the /health endpoint handler.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := h.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if response.Status == "healthy" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(response)
	})
}
