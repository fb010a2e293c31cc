package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck returns the server health status
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := models.HealthResponse{
		Status:    "healthy",
		Database:  "ok",
		Timestamp: time.Now().UTC(),
	}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}
