// Package tiered composes the in-process cache engine with a backing store
// into a two-level cache: a fast generic L1 in front of a shared L2. Values
// cross the store boundary as JSON, and payloads at or above a configurable
// threshold are gzip-compressed on the way out.
package tiered

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/developer-mesh/cachekit/cache"
	"github.com/developer-mesh/cachekit/observability"
	"github.com/developer-mesh/cachekit/storage"
)

// Config controls both tiers of a TieredCache. The zero value is usable;
// unset fields take the defaults below.
type Config struct {
	// L1MaxSize bounds the in-process tier.
	L1MaxSize int `mapstructure:"l1_max_size"`
	// L1TTL is how long a written or promoted value stays in-process.
	// It is typically shorter than L2TTL so the store stays authoritative.
	L1TTL time.Duration `mapstructure:"l1_ttl"`
	// L1Policy selects the in-process eviction policy. Empty means LRU.
	L1Policy cache.Policy `mapstructure:"l1_policy"`
	// L2TTL is handed to the store on writes when the caller passes no ttl.
	L2TTL time.Duration `mapstructure:"l2_ttl"`

	// EnableCompression gzips payloads of at least CompressionThreshold
	// bytes before they reach the store.
	EnableCompression    bool `mapstructure:"enable_compression"`
	CompressionThreshold int  `mapstructure:"compression_threshold"`

	Logger  observability.Logger        `mapstructure:"-"`
	Metrics observability.MetricsClient `mapstructure:"-"`
}

// DefaultConfig returns the settings used for unset Config fields.
func DefaultConfig() Config {
	return Config{
		L1MaxSize:            1000,
		L1TTL:                5 * time.Minute,
		L1Policy:             cache.PolicyLRU,
		L2TTL:                15 * time.Minute,
		EnableCompression:    true,
		CompressionThreshold: 1024,
	}
}

// LoadConfigFromViper reads the tiered cache configuration from the
// "tiered" key of the given viper instance, applying defaults for anything
// unset. Defaults are filled in after unmarshalling because viper does not
// merge nested defaults with explicitly set sub-keys. EnableCompression
// needs an explicit presence check since false is its zero value.
func LoadConfigFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.UnmarshalKey("tiered", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal tiered config: %w", err)
	}

	def := DefaultConfig()
	if !v.IsSet("tiered.enable_compression") {
		cfg.EnableCompression = def.EnableCompression
	}
	if cfg.L1MaxSize <= 0 {
		cfg.L1MaxSize = def.L1MaxSize
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = def.L1TTL
	}
	if cfg.L1Policy == "" {
		cfg.L1Policy = def.L1Policy
	}
	if cfg.L2TTL <= 0 {
		cfg.L2TTL = def.L2TTL
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = def.CompressionThreshold
	}
	return cfg, nil
}

// TierStats is a point-in-time view of a TieredCache's counters. The L1
// numbers come from the engine's own tracker; the rest cover the store side.
type TierStats struct {
	L1               cache.Stats `json:"l1"`
	L2Hits           int64       `json:"l2_hits"`
	L2Misses         int64       `json:"l2_misses"`
	Errors           int64       `json:"errors"`
	CoalescedLoads   int64       `json:"coalesced_loads"`
	CompressionSaved int64       `json:"compression_saved_bytes"`
}

// tierCounters tracks the store-side statistics.
type tierCounters struct {
	l2Hits           atomic.Int64
	l2Misses         atomic.Int64
	errors           atomic.Int64
	coalescedLoads   atomic.Int64
	compressionSaved atomic.Int64
}

// inflightLoad carries one loader invocation shared by every caller that
// missed on the same key while it ran.
type inflightLoad[V any] struct {
	value   V
	err     error
	done    chan struct{}
	waiters int
}

// TieredCache reads through an in-process tier into a Store and writes
// through both. A nil store degrades it to in-process only: reads stop at
// L1 and writes skip the store without error.
type TieredCache[V any] struct {
	l1  *cache.Cache[V]
	l2  storage.Store
	cfg Config

	inflightMu sync.Mutex
	inflight   map[string]*inflightLoad[V]

	counters *tierCounters
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New creates a TieredCache over the given store. The in-process tier is
// built from the L1 fields of cfg; an unknown L1Policy is the only error.
func New[V any](store storage.Store, cfg Config) (*TieredCache[V], error) {
	def := DefaultConfig()
	if cfg.L1MaxSize <= 0 {
		cfg.L1MaxSize = def.L1MaxSize
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = def.L1TTL
	}
	if cfg.L2TTL <= 0 {
		cfg.L2TTL = def.L2TTL
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = def.CompressionThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}

	l1, err := cache.New[V](cache.Config[V]{
		MaxSize:    cfg.L1MaxSize,
		DefaultTTL: cfg.L1TTL,
		Policy:     cfg.L1Policy,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create l1 cache: %w", err)
	}

	return &TieredCache[V]{
		l1:       l1,
		l2:       store,
		cfg:      cfg,
		inflight: make(map[string]*inflightLoad[V]),
		counters: &tierCounters{},
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Get returns the value for key, consulting the in-process tier first and
// promoting store hits into it. Store failures are logged and counted but
// surface as plain misses, so a degraded backend never breaks reads.
func (tc *TieredCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	if value, ok := tc.l1.Get(key); ok {
		return value, true
	}

	if tc.l2 == nil {
		return zero, false
	}

	payload, err := tc.l2.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			tc.counters.errors.Add(1)
			tc.logger.Warn("store read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		tc.counters.l2Misses.Add(1)
		return zero, false
	}

	value, err := tc.decode([]byte(payload))
	if err != nil {
		tc.counters.errors.Add(1)
		tc.logger.Warn("dropping undecodable stored value", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		_ = tc.l2.Remove(ctx, key)
		return zero, false
	}

	tc.counters.l2Hits.Add(1)
	tc.l1.Set(key, value, tc.cfg.L1TTL)
	return value, true
}

// Set writes through both tiers. A non-positive ttl selects the configured
// L2 retention; the in-process copy always uses the shorter L1TTL.
func (tc *TieredCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if tc.l2 == nil {
		tc.l1.Set(key, value, tc.cfg.L1TTL)
		return nil
	}

	payload, err := tc.encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %q: %w", key, err)
	}

	tc.l1.Set(key, value, tc.cfg.L1TTL)

	if ttl <= 0 {
		ttl = tc.cfg.L2TTL
	}
	if err := tc.l2.Write(ctx, key, string(payload), ttl); err != nil {
		tc.counters.errors.Add(1)
		return fmt.Errorf("failed to write key %q to store: %w", key, err)
	}
	return nil
}

// Delete removes key from both tiers.
func (tc *TieredCache[V]) Delete(ctx context.Context, key string) error {
	tc.l1.Delete(key)

	if tc.l2 == nil {
		return nil
	}
	if err := tc.l2.Remove(ctx, key); err != nil {
		tc.counters.errors.Add(1)
		return fmt.Errorf("failed to remove key %q from store: %w", key, err)
	}
	return nil
}

// InvalidatePattern removes every key matching the glob pattern from both
// tiers. The store side needs a KeyLister; over a store that cannot
// enumerate keys only the in-process entries are dropped.
func (tc *TieredCache[V]) InvalidatePattern(ctx context.Context, pattern string) error {
	tc.l1.InvalidatePattern(pattern)

	lister, ok := tc.l2.(storage.KeyLister)
	if !ok {
		return nil
	}

	keys, err := lister.ListKeys(ctx, pattern)
	if err != nil {
		tc.counters.errors.Add(1)
		return fmt.Errorf("failed to list keys for pattern %q: %w", pattern, err)
	}
	for _, key := range keys {
		if err := tc.l2.Remove(ctx, key); err != nil {
			tc.counters.errors.Add(1)
			tc.logger.Warn("failed to remove matched key from store", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return nil
}

// GetOrCompute returns the cached value for key, running loader on a miss
// and writing the result through both tiers. Concurrent misses on the same
// key share a single loader invocation; callers that arrive while it runs
// block until it finishes or their context ends. Loader errors are returned
// to every waiter and nothing is cached.
func (tc *TieredCache[V]) GetOrCompute(ctx context.Context, key string, loader func() (V, error)) (V, error) {
	if value, ok := tc.Get(ctx, key); ok {
		return value, nil
	}

	var zero V

	tc.inflightMu.Lock()
	if req, exists := tc.inflight[key]; exists {
		req.waiters++
		tc.inflightMu.Unlock()

		select {
		case <-req.done:
			tc.counters.coalescedLoads.Add(1)
			return req.value, req.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	req := &inflightLoad[V]{done: make(chan struct{})}
	tc.inflight[key] = req
	tc.inflightMu.Unlock()

	value, err := loader()
	req.value = value
	req.err = err

	if err == nil {
		if cacheErr := tc.Set(ctx, key, value, 0); cacheErr != nil {
			tc.logger.Warn("failed to cache loaded value", map[string]interface{}{
				"key":   key,
				"error": cacheErr.Error(),
			})
		}
	}

	tc.inflightMu.Lock()
	delete(tc.inflight, key)
	tc.inflightMu.Unlock()

	close(req.done)

	return value, err
}

// Stats returns a snapshot of both tiers' counters.
func (tc *TieredCache[V]) Stats() TierStats {
	return TierStats{
		L1:               tc.l1.Stats(),
		L2Hits:           tc.counters.l2Hits.Load(),
		L2Misses:         tc.counters.l2Misses.Load(),
		Errors:           tc.counters.errors.Load(),
		CoalescedLoads:   tc.counters.coalescedLoads.Load(),
		CompressionSaved: tc.counters.compressionSaved.Load(),
	}
}

// Close clears the in-process tier and closes the store.
func (tc *TieredCache[V]) Close() error {
	tc.l1.Clear()
	if tc.l2 == nil {
		return nil
	}
	return tc.l2.Close()
}

// encode marshals value to JSON, compressing payloads at or above the
// configured threshold when that actually shrinks them.
func (tc *TieredCache[V]) encode(value V) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if tc.cfg.EnableCompression && len(data) >= tc.cfg.CompressionThreshold {
		compressed, err := compress(data)
		if err != nil {
			tc.logger.Warn("compression failed, storing raw payload", map[string]interface{}{
				"error": err.Error(),
			})
			return data, nil
		}
		if len(compressed) < len(data) {
			tc.counters.compressionSaved.Add(int64(len(data) - len(compressed)))
			return compressed, nil
		}
	}
	return data, nil
}

// decode reverses encode, sniffing the gzip magic header to tell compressed
// payloads from raw JSON.
func (tc *TieredCache[V]) decode(data []byte) (V, error) {
	var value V
	if isCompressed(data) {
		raw, err := decompress(data)
		if err != nil {
			return value, err
		}
		data = raw
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, err
	}
	return value, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gz.Close() }()
	return io.ReadAll(gz)
}

// isCompressed checks for the gzip magic header. JSON text can never start
// with these bytes, so the sniff is unambiguous.
func isCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
