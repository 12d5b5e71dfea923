// Package handlers contains the HTTP handlers. Each handler owns the mapping
// from service errors to the JSON error envelope; business rules live in the
// service packages.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/flitdev/flit/internal/httpx"
	"github.com/go-chi/chi/v5"
)

// idParam parses the {id} route parameter. On failure it writes a 400
// envelope and returns false.
func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeInvalidInput, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// optionalString returns a pointer to the value, or nil when it is empty.
func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
