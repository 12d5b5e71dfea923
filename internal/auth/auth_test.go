package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flitdev/flit/internal/httpx"
)

func TestMemoryTokenStore(t *testing.T) {
	store := NewMemoryTokenStore()

	if store.Count() != 0 {
		t.Errorf("fresh store Count = %d, want 0", store.Count())
	}
	if store.Validate("anything") {
		t.Error("fresh store must not validate any token")
	}

	token, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("Issue returned empty token")
	}
	if !store.Validate(token) {
		t.Error("issued token must validate")
	}

	second, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if second == token {
		t.Error("tokens must be unique")
	}
	if store.Count() != 2 {
		t.Errorf("Count = %d, want 2", store.Count())
	}

	store.Revoke(token)
	if store.Validate(token) {
		t.Error("revoked token must not validate")
	}
	if !store.Validate(second) {
		t.Error("revoking one token must not affect others")
	}

	// Revoking an unknown token is a no-op
	store.Revoke("never-issued")
	if store.Count() != 1 {
		t.Errorf("Count = %d, want 1", store.Count())
	}
}

func TestVerifySecret(t *testing.T) {
	if !VerifySecret("s3cret", "s3cret") {
		t.Error("matching secrets must verify")
	}
	if VerifySecret("s3cret", "other") {
		t.Error("mismatched secrets must not verify")
	}
	if VerifySecret("", "s3cret") {
		t.Error("empty presented secret must not verify")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{
			name:     "standard header",
			header:   "Bearer abc123",
			expected: "abc123",
		},
		{
			name:     "case-insensitive scheme",
			header:   "bearer abc123",
			expected: "abc123",
		},
		{
			name:     "missing header",
			header:   "",
			expected: "",
		},
		{
			name:     "wrong scheme",
			header:   "Basic abc123",
			expected: "",
		},
		{
			name:     "scheme only",
			header:   "Bearer ",
			expected: "",
		},
		{
			name:     "bare token",
			header:   "abc123",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(r); got != tt.expected {
				t.Errorf("BearerToken() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	store := NewMemoryTokenStore()
	token, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	protected := RequireAuth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if w.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Errorf("WWW-Authenticate = %q, want Bearer", w.Header().Get("WWW-Authenticate"))
		}

		var resp httpx.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding error envelope: %v", err)
		}
		if !resp.Error || resp.Code != httpx.CodeUnauthenticated {
			t.Errorf("envelope = %+v, want unauthenticated error", resp)
		}
	})

	t.Run("unknown token rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("revoked token rejected", func(t *testing.T) {
		store.Revoke(token)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}
