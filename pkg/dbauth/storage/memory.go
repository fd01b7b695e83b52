package storage

import (
	"sync"

	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

// MemoryCache implements the in-memory token cache, one token per identity
// key. Tokens are lost when the process exits.
type MemoryCache struct {
	mu     sync.RWMutex
	tokens map[string]types.Token
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		tokens: make(map[string]types.Token),
	}
}

// Get returns the token cached under key.
func (m *MemoryCache) Get(key string) (types.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[key]
	return token, ok
}

// Set caches token under key, replacing any previous token. Empty keys and
// zero tokens are ignored.
func (m *MemoryCache) Set(key string, token types.Token) {
	if key == "" || token.IsZero() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = token
}

// Remove drops the token cached under key, if any.
func (m *MemoryCache) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
}

// Len returns the number of cached tokens.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

// Clear drops every cached token.
func (m *MemoryCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = make(map[string]types.Token)
}
