// Package registry holds the in-memory mirror of the registry records that
// the dispatch hot path reads: admin credentials, user API keys, backend URL
// sets, and model mappings. The durable copy lives in the store; the admin
// service publishes every committed change here before acknowledging it.
//
// Each record kind is guarded by its own RWMutex. Lookups take a read lock
// and publishes swap whole values under the write lock, so a reader observes
// the state before or after a change, never a partial one. No lock is ever
// held across I/O.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/allaspectsdev/routeman/internal/store"
)

// Cache is the shared registry mirror. The zero value is not usable; use New.
type Cache struct {
	credMu sync.RWMutex
	creds  map[string]string // provider → secret (or key reference)

	keyMu  sync.RWMutex
	keys   map[string]store.APIKey // secret → key record
	keyIDs map[int64]string        // id → secret

	backendMu sync.RWMutex
	backends  map[string][]string // provider → ordered URLs

	mapMu    sync.RWMutex
	mappings map[string]string // model → provider
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		creds:    make(map[string]string),
		keys:     make(map[string]store.APIKey),
		keyIDs:   make(map[int64]string),
		backends: make(map[string][]string),
		mappings: make(map[string]string),
	}
}

// LoadFrom primes all four sections from the store. Each section is built
// off-lock and swapped in whole, so readers never see a half-loaded cache.
func (c *Cache) LoadFrom(st *store.Store) error {
	creds, err := st.ListCredentials()
	if err != nil {
		return fmt.Errorf("registry: load credentials: %w", err)
	}
	credMap := make(map[string]string, len(creds))
	for _, cr := range creds {
		credMap[cr.Provider] = cr.Secret
	}

	keys, err := st.ListAPIKeys()
	if err != nil {
		return fmt.Errorf("registry: load api keys: %w", err)
	}
	keyMap := make(map[string]store.APIKey, len(keys))
	idMap := make(map[int64]string, len(keys))
	for _, k := range keys {
		keyMap[k.Key] = *k
		idMap[k.ID] = k.Key
	}

	backends, err := st.ListBackends()
	if err != nil {
		return fmt.Errorf("registry: load backends: %w", err)
	}

	mappings, err := st.ListMappings()
	if err != nil {
		return fmt.Errorf("registry: load mappings: %w", err)
	}
	mapMap := make(map[string]string, len(mappings))
	for _, m := range mappings {
		mapMap[m.Model] = m.Provider
	}

	c.credMu.Lock()
	c.creds = credMap
	c.credMu.Unlock()

	c.keyMu.Lock()
	c.keys = keyMap
	c.keyIDs = idMap
	c.keyMu.Unlock()

	c.backendMu.Lock()
	c.backends = backends
	c.backendMu.Unlock()

	c.mapMu.Lock()
	c.mappings = mapMap
	c.mapMu.Unlock()

	return nil
}

// Credential returns the stored secret for a provider.
func (c *Cache) Credential(provider string) (string, bool) {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	secret, ok := c.creds[provider]
	return secret, ok
}

// SetCredential publishes a provider credential.
func (c *Cache) SetCredential(provider, secret string) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	c.creds[provider] = secret
}

// RemoveCredential withdraws a provider credential.
func (c *Cache) RemoveCredential(provider string) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	delete(c.creds, provider)
}

// LookupAPIKey returns the key record for a bearer secret. Callers must
// check Active themselves; inactive keys stay resident so a deactivated
// key is distinguishable from an unknown one.
func (c *Cache) LookupAPIKey(secret string) (store.APIKey, bool) {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	k, ok := c.keys[secret]
	return k, ok
}

// PutAPIKey publishes a key record, indexing it by secret and by id.
func (c *Cache) PutAPIKey(k store.APIKey) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	c.keys[k.Key] = k
	c.keyIDs[k.ID] = k.Key
}

// RemoveAPIKey withdraws a key record by its secret.
func (c *Cache) RemoveAPIKey(secret string) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	k, ok := c.keys[secret]
	if !ok {
		return
	}
	delete(c.keys, secret)
	delete(c.keyIDs, k.ID)
}

// SetAPIKeyActive flips the active flag on the key with the given id. It is
// a no-op when the id is not resident.
func (c *Cache) SetAPIKeyActive(id int64, active bool) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	secret, ok := c.keyIDs[id]
	if !ok {
		return
	}
	k := c.keys[secret]
	k.Active = active
	c.keys[secret] = k
}

// BackendURLs returns the ordered URL set for a provider. The returned slice
// is a published snapshot and is replaced, never mutated, on change; callers
// must treat it as read-only.
func (c *Cache) BackendURLs(provider string) ([]string, bool) {
	c.backendMu.RLock()
	defer c.backendMu.RUnlock()
	urls, ok := c.backends[provider]
	return urls, ok
}

// SetBackendURLs publishes the complete URL set for a provider, replacing
// any previous set.
func (c *Cache) SetBackendURLs(provider string, urls []string) {
	snapshot := make([]string, len(urls))
	copy(snapshot, urls)

	c.backendMu.Lock()
	defer c.backendMu.Unlock()
	c.backends[provider] = snapshot
}

// RemoveBackendProvider withdraws a provider and all its URLs.
func (c *Cache) RemoveBackendProvider(provider string) {
	c.backendMu.Lock()
	defer c.backendMu.Unlock()
	delete(c.backends, provider)
}

// Provider resolves a model name to its mapped provider.
func (c *Cache) Provider(model string) (string, bool) {
	c.mapMu.RLock()
	defer c.mapMu.RUnlock()
	provider, ok := c.mappings[model]
	return provider, ok
}

// SetMapping publishes a model → provider mapping, replacing any previous
// target for the model.
func (c *Cache) SetMapping(model, provider string) {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	c.mappings[model] = provider
}

// RemoveMapping withdraws a model mapping.
func (c *Cache) RemoveMapping(model string) {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	delete(c.mappings, model)
}

// Models returns the mapped model names in sorted order.
func (c *Cache) Models() []string {
	c.mapMu.RLock()
	models := make([]string, 0, len(c.mappings))
	for model := range c.mappings {
		models = append(models, model)
	}
	c.mapMu.RUnlock()

	sort.Strings(models)
	return models
}
