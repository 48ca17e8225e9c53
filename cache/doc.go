// Package cache provides a bounded in-memory cache with per-entry TTL,
// pluggable eviction policies, statistics tracking, and glob pattern
// invalidation.
//
// # Overview
//
// The package is built around a generic Cache engine that expires entries
// lazily on access and evicts by policy only when a new key would exceed the
// configured capacity. Around the engine sit small composable layers:
// CleanupCache adds a background sweep with an explicit destroy lifecycle,
// TracedCache adds OpenTelemetry spans, and Registry hands out shared named
// caches.
//
// Key features:
//   - LRU, LFU, FIFO, and TTL-based eviction strategies
//   - Per-entry TTL with lazy expiration and optional background sweeps
//   - Hit, miss, eviction, and expiration counters with hit-rate calculation
//   - Glob pattern invalidation backed by a compiled-pattern cache
//   - Eviction and expiration callbacks
//   - Structured logging and metrics via the observability package
//
// Basic Usage
//
//	c, err := cache.New[string](cache.Config[string]{
//	    MaxSize:    1000,
//	    DefaultTTL: 10 * time.Minute,
//	    Policy:     cache.PolicyLRU,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c.Set("user:1", "alice", 0) // 0 means the configured default TTL
//	if v, ok := c.Get("user:1"); ok {
//	    fmt.Println(v)
//	}
//
//	// Drop every user entry at once.
//	removed := c.InvalidatePattern("user:*")
//
// Background Cleanup
//
// The engine only notices an expired entry when something reads it. Wrap it
// in a CleanupCache to reclaim capacity on a timer, and destroy the wrapper
// when the cache is no longer needed:
//
//	cc := cache.NewCleanupCache(c, cache.CleanupConfig{Interval: time.Minute})
//	defer cc.Destroy()
//
// Named Caches
//
// A Registry keeps independent caches addressable by name so unrelated
// subsystems can share them without passing instances around:
//
//	reg := cache.NewRegistry[string](logger)
//	sessions, err := reg.GetCache("sessions", nil) // DefaultConfig
//
// # Configuration
//
// Config fields left zero fall back to package defaults (MaxSize 100,
// DefaultTTL five minutes, LRU policy). Configuration can also be loaded
// from viper under the "cache" key; see LoadConfigFromViper.
package cache
