package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/careerbot/internal/store"
)

const defaultHealthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	return &HealthHandler{repo: repo, timeout: timeout}
}

// Root answers the legacy liveness probe on /.
func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "Backend is running!"})
}

// Health returns the health status of the API and its store.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
}
