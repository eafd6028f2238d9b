// Package creds exposes the session credential the chat client carries on
// every connect attempt and REST call. The client never issues or refreshes
// tokens itself; it only reads whatever the host application stored.
package creds

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Store is a read-only view of wherever the session token lives.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)
}

// Static is an in-memory Store seeded once, typically from configuration.
type Static map[string]string

// Get returns the value for key.
func (s Static) Get(key string) (string, bool) {
	v, ok := s[key]
	if v == "" {
		return "", false
	}
	return v, ok
}

// Env reads tokens from environment variables. Keys are upper-cased, so a
// token key of "session_token" resolves to SESSION_TOKEN.
type Env struct{}

// Get returns the environment value for key.
func (Env) Get(key string) (string, bool) {
	v := os.Getenv(strings.ToUpper(key))
	return v, v != ""
}

// Provider resolves the current session token before each connect attempt.
// A token that parses as a JWT with an expiry in the past counts as absent,
// so callers degrade to anonymous mode instead of retrying a dead credential.
type Provider struct {
	mu    sync.RWMutex
	store Store
	key   string
}

// NewProvider builds a provider reading key from store.
func NewProvider(store Store, key string) *Provider {
	return &Provider{store: store, key: key}
}

// Token returns the current credential, or false when none is usable.
func (p *Provider) Token() (string, bool) {
	p.mu.RLock()
	store, key := p.store, p.key
	p.mu.RUnlock()

	if store == nil {
		return "", false
	}
	token, ok := store.Get(key)
	if !ok || token == "" {
		return "", false
	}
	if expired(token) {
		return "", false
	}
	return token, true
}

// SetStore swaps the backing store, e.g. after a login flow completes.
func (p *Provider) SetStore(store Store) {
	p.mu.Lock()
	p.store = store
	p.mu.Unlock()
}

// expired reports whether token is a JWT whose exp claim has passed.
// Signature verification is the server's job; the client only sniffs the
// expiry to avoid connect attempts that are guaranteed to be rejected.
// Opaque non-JWT tokens are passed through untouched.
func expired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
