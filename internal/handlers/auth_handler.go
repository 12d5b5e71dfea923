package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flitdev/flit/internal/auth"
	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/httpx"
	"github.com/flitdev/flit/internal/logger"
	"github.com/flitdev/flit/internal/metrics"
)

// AuthHandler serves the access gate endpoints.
type AuthHandler struct {
	store auth.TokenStore
	cfg   *config.Config
}

func NewAuthHandler(store auth.TokenStore, cfg *config.Config) *AuthHandler {
	return &AuthHandler{store: store, cfg: cfg}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login exchanges the shared secret for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, "invalid JSON body")
		return
	}

	if !auth.VerifySecret(req.Password, h.cfg.AppSecret) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		logger.Warn("failed login attempt", "remote_addr", r.RemoteAddr)
		httpx.Error(w, http.StatusUnauthorized, httpx.CodeUnauthenticated, "invalid password")
		return
	}

	token, err := h.store.Issue()
	if err != nil {
		httpx.Internal(w, err, h.cfg.Env == "development")
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

// Logout revokes the presented token. Logging out with an unknown or missing
// token still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := auth.BearerToken(r); token != "" {
		h.store.Revoke(token)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// Verify confirms the caller holds a valid token. It sits behind RequireAuth,
// so reaching it at all is the confirmation.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"valid": true})
}

// Status reports gate configuration without requiring a token.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"auth_required":   true,
		"active_sessions": h.store.Count(),
		"server_time":     time.Now().UTC().Format(time.RFC3339),
	})
}
