package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/developer-mesh/cachekit/observability"
)

// CleanupConfig configures the background sweep of a CleanupCache.
type CleanupConfig struct {
	// Interval between sweeps. Non-positive values fall back to
	// DefaultCleanupInterval, so the zero value is usable.
	Interval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`

	Logger observability.Logger `mapstructure:"-" json:"-"`
}

// DefaultCleanupConfig returns a configuration with the package defaults.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{Interval: DefaultCleanupInterval}
}

// LoadCleanupConfigFromViper reads sweep configuration from the "cache" key
// of v, applying the package default for anything unset.
func LoadCleanupConfigFromViper(v *viper.Viper) (CleanupConfig, error) {
	var cfg CleanupConfig
	if err := v.UnmarshalKey("cache", &cfg); err != nil {
		return CleanupConfig{}, fmt.Errorf("failed to unmarshal cleanup config: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupInterval
	}
	return cfg, nil
}

// CleanupCache wraps a Cache with a periodic background sweep that removes
// expired entries without waiting for a read to find them. Lazy expiration
// alone lets a stale entry occupy capacity indefinitely when it is never
// read again; the sweep reclaims that capacity.
//
// A CleanupCache moves one way from active to destroyed. Destroy stops the
// sweep and clears the engine; afterwards every operation degrades to a
// benign no-op instead of panicking, because destroy is expected to race
// with in-flight callers holding a reference.
type CleanupCache[V any] struct {
	engine *Cache[V]
	logger observability.Logger

	mu        sync.RWMutex
	destroyed bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

var _ CacheOps[any] = (*CleanupCache[any])(nil)

// NewCleanupCache wraps engine and starts the sweep loop immediately.
func NewCleanupCache[V any](engine *Cache[V], cfg CleanupConfig) *CleanupCache[V] {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = engine.logger
	}

	cc := &CleanupCache[V]{
		engine: engine,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
	}

	cc.wg.Add(1)
	go cc.run(cfg.Interval)

	cc.logger.Debug("cleanup loop started", map[string]interface{}{
		"interval": cfg.Interval.String(),
	})

	return cc
}

// run sweeps the engine until the stop channel closes.
func (cc *CleanupCache[V]) run(interval time.Duration) {
	defer cc.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := cc.engine.RemoveExpired(); removed > 0 {
				cc.logger.Debug("sweep removed expired entries", map[string]interface{}{
					"count": removed,
				})
			}
		case <-cc.stopCh:
			return
		}
	}
}

// Set stores value under key. After Destroy it logs a warning and stores
// nothing.
func (cc *CleanupCache[V]) Set(key string, value V, ttl time.Duration) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		cc.logger.Warn("set on destroyed cache", map[string]interface{}{"key": key})
		return
	}
	cc.engine.Set(key, value, ttl)
}

// Get returns the live value stored under key. After Destroy it logs a
// warning and reports not found.
func (cc *CleanupCache[V]) Get(key string) (V, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		cc.logger.Warn("get on destroyed cache", map[string]interface{}{"key": key})
		var zero V
		return zero, false
	}
	return cc.engine.Get(key)
}

// Has reports whether key holds a live entry; false after Destroy.
func (cc *CleanupCache[V]) Has(key string) bool {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		return false
	}
	return cc.engine.Has(key)
}

// Delete removes key and reports whether an entry was present; false after
// Destroy.
func (cc *CleanupCache[V]) Delete(key string) bool {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		return false
	}
	return cc.engine.Delete(key)
}

// InvalidatePattern removes every entry matching the glob pattern; zero
// after Destroy.
func (cc *CleanupCache[V]) InvalidatePattern(pattern string) int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		return 0
	}
	return cc.engine.InvalidatePattern(pattern)
}

// Clear empties the engine; a safe no-op after Destroy.
func (cc *CleanupCache[V]) Clear() {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		return
	}
	cc.engine.Clear()
}

// Stats returns the engine's counters; after Destroy they are the zeroed
// counters left by the final clear.
func (cc *CleanupCache[V]) Stats() Stats {
	return cc.engine.Stats()
}

// Keys returns the engine's keys in insertion order; nil after Destroy.
func (cc *CleanupCache[V]) Keys() []string {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		return nil
	}
	return cc.engine.Keys()
}

// Len returns the engine's entry count; zero after Destroy.
func (cc *CleanupCache[V]) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if cc.destroyed {
		return 0
	}
	return cc.engine.Len()
}

// Destroy stops the sweep, waits for it to finish, and clears the engine.
// It is idempotent; only the first call has any effect.
func (cc *CleanupCache[V]) Destroy() {
	cc.mu.Lock()
	if cc.destroyed {
		cc.mu.Unlock()
		return
	}
	cc.destroyed = true
	close(cc.stopCh)
	cc.mu.Unlock()

	cc.wg.Wait()
	cc.engine.Clear()

	cc.logger.Debug("cache destroyed", nil)
}

// IsDestroyed reports whether Destroy has run.
func (cc *CleanupCache[V]) IsDestroyed() bool {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.destroyed
}
