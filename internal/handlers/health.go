// Package handlers provides HTTP handlers for GuardiaPass.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is a dependency whose availability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store Pinger
	redis *redis.Client
}

// NewHealthHandler creates a new HealthHandler. redis may be nil when
// sessions are kept in memory.
func NewHealthHandler(store Pinger, redis *redis.Client) *HealthHandler {
	return &HealthHandler{
		store: store,
		redis: redis,
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// Liveness handles the /health endpoint (basic liveness check).
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the /ready endpoint (checks all dependencies).
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	allHealthy := true

	if err := h.store.Ping(ctx); err != nil {
		slog.Error("store health check failed", "error", err)
		services["store"] = "unhealthy"
		allHealthy = false
	} else {
		services["store"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			slog.Error("redis health check failed", "error", err)
			services["redis"] = "unhealthy"
			allHealthy = false
		} else {
			services["redis"] = "healthy"
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}
