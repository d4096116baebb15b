package state

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CacheConfig contains tuning for the conversation state cache.
type CacheConfig struct {
	// TTL is how long an entry stays valid after its last access.
	// Default: 5 minutes.
	TTL time.Duration

	// MaxSize is the soft capacity bound. At capacity the least recently
	// accessed entry is evicted before a new one is inserted.
	// Default: 10000.
	MaxSize int

	// FlushInterval is the debounce delay between the first dirty mark in
	// an idle window and the batched provider flush.
	// Default: 100ms.
	FlushInterval time.Duration
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:           5 * time.Minute,
		MaxSize:       10000,
		FlushInterval: 100 * time.Millisecond,
	}
}

type cacheEntry struct {
	state      *ConversationState
	lastAccess time.Time
}

// Cache is the in-memory conversation state cache with last-access TTL,
// LRU-by-access eviction, and debounced write-through batching to an
// optional persistence provider.
//
// Cache is safe for concurrent use. State objects stored in the cache are
// immutable; replacing a tuple's state is a map-slot swap under the lock,
// so readers either see the old snapshot or the new one, never a torn one.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	dirty   map[string]struct{}

	provider Provider
	config   *CacheConfig
	logger   *slog.Logger

	flushTimer *time.Timer
	closed     bool

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewCache creates a cache backed by the given provider. The provider may be
// nil, in which case dirty tracking still works but flushes are no-ops.
func NewCache(config *CacheConfig, provider Provider, logger *slog.Logger) *Cache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:  make(map[string]*cacheEntry),
		dirty:    make(map[string]struct{}),
		provider: provider,
		config:   config,
		logger:   logger.With("component", "state.cache"),
		now:      time.Now,
	}
}

// Get returns the cached state for the tuple if it is present and fresh,
// refreshing its last-access time. Stale entries are removed on access.
func (c *Cache) Get(t Tuple) (*ConversationState, bool) {
	key := t.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.now()
	if now.Sub(e.lastAccess) >= c.config.TTL {
		delete(c.entries, key)
		return nil, false
	}
	e.lastAccess = now
	return e.state, true
}

// Set inserts or replaces the state for the tuple. When the cache is at
// capacity, the least recently accessed entry is evicted first; a dirty
// entry is flushed to the provider before it is dropped.
func (c *Cache) Set(t Tuple, s *ConversationState) {
	key := t.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.config.MaxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{state: s, lastAccess: c.now()}
}

// evictOldestLocked drops the entry with the oldest last access.
// Caller holds c.mu.
func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, e := range c.entries {
		if !found || e.lastAccess.Before(oldest) {
			oldestKey, oldest, found = key, e.lastAccess, true
		}
	}
	if !found {
		return
	}

	if _, isDirty := c.dirty[oldestKey]; isDirty {
		// Never lose a pending write: persist before dropping.
		if c.provider != nil {
			if err := c.provider.Save(context.Background(), c.entries[oldestKey].state); err != nil {
				c.logger.Error("flush before evict failed",
					"state_id", oldestKey,
					"error", err,
				)
			}
		}
		delete(c.dirty, oldestKey)
	}
	delete(c.entries, oldestKey)
}

// MarkDirty records the tuple as needing persistence and arms the debounced
// batch flush if it is not already pending.
func (c *Cache) MarkDirty(t Tuple) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.dirty[t.Key()] = struct{}{}

	if c.flushTimer == nil {
		c.flushTimer = time.AfterFunc(c.config.FlushInterval, func() {
			if err := c.FlushWrites(context.Background()); err != nil {
				c.logger.Error("batched state flush failed", "error", err)
			}
		})
	}
}

// FlushWrites persists all dirty entries to the provider and clears the
// dirty set. The first save error is returned after all entries have been
// attempted.
func (c *Cache) FlushWrites(ctx context.Context) error {
	c.mu.Lock()
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	pending := make([]*ConversationState, 0, len(c.dirty))
	for key := range c.dirty {
		if e, ok := c.entries[key]; ok {
			pending = append(pending, e.state)
		}
	}
	c.dirty = make(map[string]struct{})
	c.mu.Unlock()

	if c.provider == nil || len(pending) == 0 {
		return nil
	}

	var firstErr error
	for _, s := range pending {
		if err := c.provider.Save(ctx, s); err != nil {
			c.logger.Error("state save failed", "state_id", s.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	c.logger.Debug("flushed dirty states", "count", len(pending))
	return firstErr
}

// Clear drops all entries and pending writes.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.entries = make(map[string]*cacheEntry)
	c.dirty = make(map[string]struct{})
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close flushes pending writes and marks the cache closed. It is idempotent.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.FlushWrites(ctx)
}
