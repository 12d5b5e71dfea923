// Package httpx holds small helpers for JSON responses and the error envelope
// shared by all API handlers.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/flitdev/flit/internal/logger"
)

// Stable machine-checkable error codes carried in the error envelope.
const (
	CodeInvalidInput    = "invalid_input"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeUnauthenticated = "unauthenticated"
	CodeTooLarge        = "too_large"
	CodeInternal        = "internal"
)

// ErrorResponse is the envelope returned for every error.
type ErrorResponse struct {
	Error      bool   `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Detail     string `json:"detail,omitempty"`
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// Error writes the standard error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{
		Error:      true,
		Code:       code,
		Message:    message,
		StatusCode: status,
	})
}

// Internal writes a 500 envelope. The underlying error is logged server-side;
// detail reaches the client only in development mode.
func Internal(w http.ResponseWriter, err error, development bool) {
	logger.Error("internal server error", "error", err)
	resp := ErrorResponse{
		Error:      true,
		Code:       CodeInternal,
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
	}
	if development && err != nil {
		resp.Detail = err.Error()
	}
	JSON(w, http.StatusInternalServerError, resp)
}
