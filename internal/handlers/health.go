package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Pinger is implemented by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	db  Pinger
	log *slog.Logger
}

// NewHealthHandler creates a health handler that checks db.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{
		db:  db,
		log: slog.Default().With("component", "HealthHandler"),
	}
}

// Ping reports that the process is up.
func (h *HealthHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("pong\n"))
}

// Health reports whether the database is reachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.log.WarnContext(ctx, "database ping failed", "error", err)
		writeJSON(w, h.log, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}
