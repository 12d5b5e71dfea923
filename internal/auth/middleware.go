package auth

import (
	"net/http"
	"strings"

	"github.com/flitdev/flit/internal/httpx"
)

// BearerToken extracts the token from an Authorization: Bearer header.
// Returns "" when the header is absent or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}

// RequireAuth gates a route subtree on a valid bearer token.
func RequireAuth(store TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" || !store.Validate(token) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				httpx.Error(w, http.StatusUnauthorized, httpx.CodeUnauthenticated, "invalid or missing access token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
