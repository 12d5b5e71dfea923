package handlers

import (
	"net/http"

	"github.com/flitdev/flit/internal/httpx"
	"github.com/flitdev/flit/internal/storage"
	"gorm.io/gorm"
)

// HealthHandler reports readiness of the database and the storage backend.
type HealthHandler struct {
	db      *gorm.DB
	backend storage.Backend
}

func NewHealthHandler(db *gorm.DB, backend storage.Backend) *HealthHandler {
	return &HealthHandler{db: db, backend: backend}
}

// Health handles GET /health. It returns 200 with per-check detail when
// everything passes and 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"storage":  "ok",
	}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}

	if err := h.backend.HealthCheck(r.Context()); err != nil {
		checks["storage"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	httpx.JSON(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
