package cache

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/developer-mesh/cachekit/observability"
)

// Defaults applied wherever the corresponding configuration field is unset.
const (
	DefaultMaxSize         = 100
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Config configures a Cache instance. The zero value is usable: New fills
// every unset field with the package defaults and a nil Logger or Metrics
// with the no-op implementations. The configuration is snapshotted at
// construction; later mutation of a Config value has no effect on caches
// already built from it.
type Config[V any] struct {
	// MaxSize caps the number of concurrently stored entries.
	MaxSize int `mapstructure:"max_size" json:"max_size"`
	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration `mapstructure:"default_ttl" json:"default_ttl"`
	// Policy selects the eviction strategy consulted on insertion pressure.
	Policy Policy `mapstructure:"eviction_policy" json:"eviction_policy"`

	// OnEvict runs after a capacity eviction removes an entry.
	OnEvict EntryCallback[V] `mapstructure:"-" json:"-"`
	// OnExpire runs after lazy expiration removes an entry.
	OnExpire EntryCallback[V] `mapstructure:"-" json:"-"`

	Logger  observability.Logger        `mapstructure:"-" json:"-"`
	Metrics observability.MetricsClient `mapstructure:"-" json:"-"`
}

// DefaultConfig returns a configuration with the package defaults.
func DefaultConfig[V any]() Config[V] {
	return Config[V]{
		MaxSize:    DefaultMaxSize,
		DefaultTTL: DefaultTTL,
		Policy:     PolicyLRU,
	}
}

// withDefaults fills unset fields with the package defaults.
func (c Config[V]) withDefaults() Config[V] {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.Policy == "" {
		c.Policy = PolicyLRU
	}
	if c.Logger == nil {
		c.Logger = observability.NewNoopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NewNoopMetricsClient()
	}
	return c
}

// LoadConfigFromViper reads cache configuration from the "cache" key of v,
// applying the package defaults for anything unset. Callbacks, logger, and
// metrics are runtime dependencies and are never read from configuration.
// Defaults are filled in after unmarshalling because viper does not merge
// nested defaults with explicitly set sub-keys.
func LoadConfigFromViper[V any](v *viper.Viper) (Config[V], error) {
	var cfg Config[V]
	if err := v.UnmarshalKey("cache", &cfg); err != nil {
		return Config[V]{}, fmt.Errorf("failed to unmarshal cache config: %w", err)
	}

	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}

	if _, err := NewStrategy[V](cfg.Policy); err != nil {
		return Config[V]{}, err
	}

	return cfg, nil
}
