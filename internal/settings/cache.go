package settings

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultCacheTTL = 5 * time.Minute

// Cache serves client settings with a TTL, revalidating against the
// store's updated-at watermark instead of re-reading the full row when
// nothing changed. Fetches for the same client are serialized with a
// per-client lock; different clients never block each other.
type Cache struct {
	store Store
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	mu        sync.Mutex
	settings  *ClientSettings
	fetchedAt time.Time
}

// NewCache wraps a store. A non-positive ttl selects the default.
func NewCache(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		entries: map[string]*cacheEntry{},
	}
}

// Get returns the client's settings, from cache when fresh. A client with
// no stored settings is an error here; callers cannot proceed without
// prompts.
func (c *Cache) Get(ctx context.Context, clientID string) (*ClientSettings, error) {
	entry := c.entry(clientID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	if entry.settings != nil && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.settings, nil
	}

	if entry.settings != nil {
		watermark, err := c.store.LastUpdated(ctx, clientID)
		if err != nil {
			// Keep serving the stale copy over failing the request.
			zap.L().Warn("settings watermark check failed, serving cached",
				zap.String("client_id", clientID),
				zap.Error(err))
			return entry.settings, nil
		}
		if !watermark.After(entry.settings.UpdatedAt) {
			entry.fetchedAt = now
			return entry.settings, nil
		}
	}

	settings, err := c.store.Get(ctx, clientID)
	if err != nil {
		if entry.settings != nil {
			zap.L().Warn("settings reload failed, serving cached",
				zap.String("client_id", clientID),
				zap.Error(err))
			return entry.settings, nil
		}
		return nil, err
	}
	if settings == nil {
		return nil, eris.Errorf("settings: no settings stored for client %s", clientID)
	}

	entry.settings = settings
	entry.fetchedAt = now
	return settings, nil
}

// Invalidate drops the cached entry for a client.
func (c *Cache) Invalidate(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, clientID)
}

func (c *Cache) entry(clientID string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[clientID]
	if !ok {
		e = &cacheEntry{}
		c.entries[clientID] = e
	}
	return e
}
