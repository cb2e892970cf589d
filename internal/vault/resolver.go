package vault

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultResolveTTL     = 5 * time.Minute
	defaultResolveEntries = 256
)

// resolvedSecret is a cached resolution result.
type resolvedSecret struct {
	secret    string
	expiresAt time.Time
}

// Expired returns true if the entry has passed its expiration time.
func (e *resolvedSecret) Expired() bool {
	return time.Now().After(e.expiresAt)
}

// Resolver resolves stored credentials to secrets, caching indirect
// references in a TTL'd LRU. Keyring and file lookups are too slow for the
// request path; the TTL bounds how long a rotated secret can keep serving.
// Literal secrets bypass the cache entirely.
type Resolver struct {
	vault *Vault
	cache *lru.Cache[string, *resolvedSecret]
	ttl   time.Duration
}

// NewResolver creates a Resolver over the given vault. A non-positive ttl or
// maxEntries selects the default.
func NewResolver(v *Vault, ttl time.Duration, maxEntries int) (*Resolver, error) {
	if ttl <= 0 {
		ttl = defaultResolveTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultResolveEntries
	}

	cache, err := lru.New[string, *resolvedSecret](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("vault: creating resolve cache: %w", err)
	}

	return &Resolver{
		vault: v,
		cache: cache,
		ttl:   ttl,
	}, nil
}

// Resolve returns the secret a stored credential denotes. Indirect
// references are resolved through the vault and cached; literals are
// returned as-is.
func (r *Resolver) Resolve(keyRef string) (string, error) {
	if !IsKeyRef(keyRef) {
		return keyRef, nil
	}

	if entry, ok := r.cache.Get(keyRef); ok {
		if !entry.Expired() {
			return entry.secret, nil
		}
		r.cache.Remove(keyRef)
	}

	secret, err := r.vault.ResolveKeyRef(keyRef)
	if err != nil {
		return "", err
	}

	r.cache.Add(keyRef, &resolvedSecret{
		secret:    secret,
		expiresAt: time.Now().Add(r.ttl),
	})
	return secret, nil
}
