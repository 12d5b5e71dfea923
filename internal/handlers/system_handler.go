package handlers

import (
	"net/http"

	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/database/models"
	"github.com/flitdev/flit/internal/httpx"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// SystemHandler serves the API descriptor and system info endpoints.
type SystemHandler struct {
	cfg *config.Config
}

func NewSystemHandler(cfg *config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// Root handles GET /: a small descriptor pointing at the API surface.
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"name":    "flit",
		"version": Version,
		"endpoints": map[string]string{
			"files":     "/api/files",
			"messages":  "/api/messages",
			"auth":      "/api/auth",
			"websocket": "/ws",
			"health":    "/health",
			"metrics":   "/metrics",
		},
	})
}

// Info handles GET /api/system/info: version, upload limits and capabilities.
func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version":                 Version,
		"environment":             h.cfg.Env,
		"storage_backend":         h.cfg.StorageBackend,
		"max_file_size":           h.cfg.MaxFileSize,
		"max_file_size_formatted": models.FormatFileSize(h.cfg.MaxFileSize),
		"allowed_extensions":      h.cfg.AllowedExtensions,
		"deduplication":           true,
	})
}
