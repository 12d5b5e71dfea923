// Package auth implements the access gate: a single shared secret exchanged
// for bearer tokens held in an injectable in-process store.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"sync"
)

// TokenStore tracks valid session tokens. It is injected rather than global
// so it can be swapped for a persistent store without touching call sites.
type TokenStore interface {
	// Issue mints and registers a new token.
	Issue() (string, error)
	// Validate reports whether a token is currently valid.
	Validate(token string) bool
	// Revoke invalidates a token. Revoking an unknown token is a no-op.
	Revoke(token string)
	// Count returns the number of active tokens.
	Count() int
}

// MemoryTokenStore is the default TokenStore: a mutex-guarded set, initialized
// empty at startup, populated on login and drained on logout. Tokens do not
// survive process restart.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]struct{})}
}

func (s *MemoryTokenStore) Issue() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()

	return token, nil
}

func (s *MemoryTokenStore) Validate(token string) bool {
	s.mu.RLock()
	_, ok := s.tokens[token]
	s.mu.RUnlock()
	return ok
}

func (s *MemoryTokenStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// VerifySecret compares a presented password against the configured shared
// secret in constant time.
func VerifySecret(presented, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
