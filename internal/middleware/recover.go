package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/flitdev/flit/internal/httpx"
	"github.com/flitdev/flit/internal/logger"
)

// Recover catches panics from downstream handlers and turns them into a 500
// envelope instead of tearing the connection down.
func Recover(development bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						"panic", fmt.Sprint(rec),
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					httpx.Internal(w, fmt.Errorf("panic: %v", rec), development)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
