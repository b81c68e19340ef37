package auth

import (
	"context"
	"strings"
	"sync"
)

// RefreshFunc tries to obtain a new token after a 401. It reports whether the
// registry now holds a usable token.
type RefreshFunc func(ctx context.Context) (bool, error)

// Registry holds the current bearer token, the on-401 refresh callback and the
// base URL. It is safe for concurrent use; every write is last-write-wins.
type Registry struct {
	mu      sync.RWMutex
	token   string
	on401   RefreshFunc
	baseURL string
}

// NewRegistry creates a registry for baseURL
func NewRegistry(baseURL string) *Registry {
	r := &Registry{}
	r.SetBaseURL(baseURL)
	return r
}

// Token returns the current token, or "" when logged out
func (r *Registry) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// SetToken replaces the token. "" means logged out.
func (r *Registry) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// On401 returns the registered refresh callback, if any
func (r *Registry) On401() RefreshFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.on401
}

// SetOn401 replaces the refresh callback. nil clears it.
func (r *Registry) SetOn401(fn RefreshFunc) {
	r.mu.Lock()
	r.on401 = fn
	r.mu.Unlock()
}

// BaseURL returns the configured base URL
func (r *Registry) BaseURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseURL
}

// SetBaseURL replaces the base URL, trimming one trailing slash
func (r *Registry) SetBaseURL(url string) {
	r.mu.Lock()
	r.baseURL = strings.TrimSuffix(url, "/")
	r.mu.Unlock()
}
