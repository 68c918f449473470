package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gauge reads a live count.
type Gauge func() int

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	journal Pinger
	pending Gauge
	tracked Gauge
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler. A nil journal is reported as disabled.
func NewHealthHandler(journal Pinger, pending, tracked Gauge, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{journal: journal, pending: pending, tracked: tracked, logger: logger}
}

// Health returns the health status of the bot and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "journal": "disabled"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	if h.pending != nil {
		status["pending_sessions"] = h.pending()
	}
	if h.tracked != nil {
		status["tracked_participants"] = h.tracked()
	}
	statusCode := http.StatusOK

	if h.journal != nil {
		if err := h.journal.Ping(ctx); err != nil {
			h.logger.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["journal"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["journal"] = "ok"
		}
	}

	JSON(w, statusCode, status)
}
