package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/developer-mesh/cachekit/observability"
)

// CacheOps is the operation surface shared by Cache and its decorators.
// Code that only reads and writes entries should depend on this rather than
// a concrete type.
type CacheOps[V any] interface {
	Set(key string, value V, ttl time.Duration)
	Get(key string) (V, bool)
	Has(key string) bool
	Delete(key string) bool
	InvalidatePattern(pattern string) int
	Clear()
	Stats() Stats
	Keys() []string
	Len() int
}

// Cache is a bounded in-memory key-value store with per-entry TTL, a
// configurable eviction policy, statistics tracking, and glob pattern
// invalidation. Expiration is checked lazily on reads; the engine runs no
// background work of its own (see CleanupCache for periodic sweeps). All
// operations are safe for concurrent use and run to completion under the
// cache's lock, so no caller observes a partially mutated store.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[V]
	seq     uint64

	maxSize    int
	defaultTTL time.Duration
	policy     Policy
	strategy   Strategy[V]
	onEvict    EntryCallback[V]
	onExpire   EntryCallback[V]

	stats    *StatsTracker
	patterns *PatternMatcher

	logger  observability.Logger
	metrics observability.MetricsClient

	// nowFn is replaced in tests for deterministic TTL boundaries.
	nowFn func() time.Time
}

var _ CacheOps[any] = (*Cache[any])(nil)

// New creates a cache from cfg, filling unset fields with the package
// defaults. It fails only when cfg names an unknown eviction policy.
func New[V any](cfg Config[V]) (*Cache[V], error) {
	cfg = cfg.withDefaults()

	strategy, err := NewStrategy[V](cfg.Policy)
	if err != nil {
		return nil, err
	}

	c := &Cache[V]{
		entries:    make(map[string]*Entry[V]),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		policy:     cfg.Policy,
		strategy:   strategy,
		onEvict:    cfg.OnEvict,
		onExpire:   cfg.OnExpire,
		stats:      NewStatsTracker(),
		patterns:   NewPatternMatcher(),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		nowFn:      time.Now,
	}

	c.logger.Debug("cache created", map[string]interface{}{
		"max_size":    c.maxSize,
		"default_ttl": c.defaultTTL.String(),
		"policy":      string(c.policy),
	})

	return c, nil
}

// Set stores value under key. A non-positive ttl selects the configured
// default. Overwriting an existing key never triggers eviction; inserting a
// new key at capacity first removes one victim chosen by the configured
// policy and invokes OnEvict with it.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	start := time.Now()
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	var (
		evictedKey   string
		evictedEntry *Entry[V]
	)

	c.mu.Lock()
	now := c.nowFn()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		// A full store is never empty, so a missing victim can only come
		// from a broken strategy; skip eviction rather than fail the write.
		if victim, ok := c.strategy.SelectVictim(c.entries); ok {
			evictedKey = victim
			evictedEntry = c.entries[victim]
			delete(c.entries, victim)
			c.stats.RecordEviction()
		}
	}
	c.seq++
	c.entries[key] = &Entry[V]{
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		LastAccessedAt: now,
		seq:            c.seq,
	}
	c.stats.SetSize(int64(len(c.entries)))
	c.mu.Unlock()

	if evictedEntry != nil {
		c.logger.Debug("evicted entry", map[string]interface{}{
			"key":    evictedKey,
			"policy": string(c.policy),
		})
		c.metrics.IncrementCounterWithLabels("cache_evictions_total", 1, map[string]string{
			"policy": string(c.policy),
		})
		if c.onEvict != nil {
			c.onEvict(evictedKey, evictedEntry)
		}
	}
	c.metrics.RecordCacheOperation("set", true, time.Since(start))
}

// Get returns the live value stored under key. A missing key records a
// miss. An expired entry is removed, recorded as both a miss and an
// expiration, and handed to OnExpire. A live entry has its access count and
// last access time refreshed and records a hit.
func (c *Cache[V]) Get(key string) (V, bool) {
	start := time.Now()
	var zero V

	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists {
		c.stats.RecordMiss()
		c.mu.Unlock()
		c.metrics.RecordCacheOperation("get", false, time.Since(start))
		return zero, false
	}

	now := c.nowFn()
	if entry.expired(now) {
		delete(c.entries, key)
		c.stats.RecordMiss()
		c.stats.RecordExpiration()
		c.stats.SetSize(int64(len(c.entries)))
		c.mu.Unlock()

		c.metrics.IncrementCounterWithLabels("cache_expirations_total", 1, map[string]string{
			"source": "lazy",
		})
		c.metrics.RecordCacheOperation("get", false, time.Since(start))
		if c.onExpire != nil {
			c.onExpire(key, entry)
		}
		return zero, false
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	value := entry.Value
	c.stats.RecordHit()
	c.mu.Unlock()

	c.metrics.RecordCacheOperation("get", true, time.Since(start))
	return value, true
}

// Has reports whether key holds a live entry. It applies the same lazy
// expiration as Get, including the expiration stat and OnExpire, but leaves
// the hit/miss counters and the entry's access metadata untouched.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists {
		c.mu.Unlock()
		return false
	}

	if entry.expired(c.nowFn()) {
		delete(c.entries, key)
		c.stats.RecordExpiration()
		c.stats.SetSize(int64(len(c.entries)))
		c.mu.Unlock()

		c.metrics.IncrementCounterWithLabels("cache_expirations_total", 1, map[string]string{
			"source": "lazy",
		})
		if c.onExpire != nil {
			c.onExpire(key, entry)
		}
		return false
	}
	c.mu.Unlock()
	return true
}

// Delete removes key and reports whether an entry was present. Explicit
// deletion fires no callbacks.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		return false
	}
	delete(c.entries, key)
	c.stats.SetSize(int64(len(c.entries)))
	return true
}

// InvalidatePattern removes every entry whose key matches the glob pattern
// and returns how many were removed. The scan touches the whole store.
func (c *Cache[V]) InvalidatePattern(pattern string) int {
	re := c.patterns.Compile(pattern)

	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.stats.SetSize(int64(len(c.entries)))
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("invalidated entries", map[string]interface{}{
			"pattern": pattern,
			"count":   removed,
		})
	}
	return removed
}

// Clear empties the store and resets every counter to zero. The compiled
// pattern cache is left intact.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry[V])
	c.stats.Reset()
}

// Stats returns a snapshot of the cache counters. Mutating the result has
// no effect on the cache.
func (c *Cache[V]) Stats() Stats {
	return c.stats.Snapshot()
}

// Keys returns the current keys in insertion order. Entries past their TTL
// but not yet collected are included.
func (c *Cache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].seq < c.entries[keys[j]].seq
	})
	return keys
}

// Len returns the current number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RemoveExpired removes every expired entry in one pass and returns the
// removal count. It is the bulk operation behind periodic sweeps: each
// removal counts as an expiration and the size stat is refreshed, but the
// hit/miss counters and OnExpire stay untouched.
func (c *Cache[V]) RemoveExpired() int {
	c.mu.Lock()
	now := c.nowFn()
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			c.stats.RecordExpiration()
			removed++
		}
	}
	if removed > 0 {
		c.stats.SetSize(int64(len(c.entries)))
	}
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.IncrementCounterWithLabels("cache_expirations_total", float64(removed), map[string]string{
			"source": "sweep",
		})
	}
	return removed
}
