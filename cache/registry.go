package cache

import (
	"sync"

	"github.com/developer-mesh/cachekit/observability"
)

// Registry is a directory of independent named caches, letting unrelated
// subsystems share one addressable namespace without passing instances
// around. It deliberately replaces a process-wide global: construct one at
// the composition root, hand it to consumers, and use ClearAll for test
// isolation. Two callers asking for the same name share the same cache and
// therefore its mutable state.
type Registry[V any] struct {
	mu     sync.RWMutex
	caches map[string]*Cache[V]
	logger observability.Logger
}

// NewRegistry creates an empty registry. A nil logger defaults to no-op;
// caches created by the registry inherit it with their name attached.
func NewRegistry[V any](logger observability.Logger) *Registry[V] {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Registry[V]{
		caches: make(map[string]*Cache[V]),
		logger: logger,
	}
}

// GetCache returns the cache registered under name, creating it from cfg on
// first use. A nil cfg selects DefaultConfig. Configuration applies only at
// creation; later calls for the same name return the existing cache and
// ignore cfg entirely.
func (r *Registry[V]) GetCache(name string, cfg *Config[V]) (*Cache[V], error) {
	r.mu.RLock()
	c, ok := r.caches[name]
	r.mu.RUnlock()

	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again in case it was created while we were waiting for the lock
	if c, ok := r.caches[name]; ok {
		return c, nil
	}

	conf := DefaultConfig[V]()
	if cfg != nil {
		conf = *cfg
	}
	if conf.Logger == nil {
		conf.Logger = r.logger.With(map[string]interface{}{"cache": name})
	}

	c, err := New[V](conf)
	if err != nil {
		return nil, err
	}

	r.caches[name] = c
	r.logger.Debug("registered cache", map[string]interface{}{"name": name})
	return c, nil
}

// DeleteCache clears and removes the named cache, reporting whether it
// existed.
func (r *Registry[V]) DeleteCache(name string) bool {
	r.mu.Lock()
	c, ok := r.caches[name]
	if ok {
		delete(r.caches, name)
	}
	r.mu.Unlock()

	if ok {
		c.Clear()
		r.logger.Debug("deleted cache", map[string]interface{}{"name": name})
	}
	return ok
}

// ClearAll clears and removes every registered cache.
func (r *Registry[V]) ClearAll() {
	r.mu.Lock()
	caches := r.caches
	r.caches = make(map[string]*Cache[V])
	r.mu.Unlock()

	for _, c := range caches {
		c.Clear()
	}
}

// CacheNames returns the registered names in no particular order.
func (r *Registry[V]) CacheNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered caches.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caches)
}
