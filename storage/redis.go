package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/developer-mesh/cachekit/observability"
)

// scanBatchSize is the COUNT hint passed to SCAN when listing keys.
const scanBatchSize = 100

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	// Address is the host:port of the Redis server.
	Address string `mapstructure:"address"`
	// Username and Password authenticate the connection when set.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Database selects the Redis logical database.
	Database int `mapstructure:"database"`
	// KeyPrefix is prepended to every key so multiple applications can
	// share one server without colliding.
	KeyPrefix string `mapstructure:"key_prefix"`
	// DefaultTTL is applied when Write receives a non-positive ttl.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// DefaultRedisConfig returns the settings used when nothing is configured.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:     "localhost:6379",
		KeyPrefix:   "cachekit:",
		DefaultTTL:  5 * time.Minute,
		DialTimeout: 5 * time.Second,
	}
}

// LoadRedisConfigFromViper reads the store configuration from the
// "storage.redis" key of the given viper instance, applying defaults for
// anything unset. Defaults are filled in after unmarshalling because viper
// does not merge nested defaults with explicitly set sub-keys.
func LoadRedisConfigFromViper(v *viper.Viper) (RedisConfig, error) {
	var cfg RedisConfig
	if err := v.UnmarshalKey("storage.redis", &cfg); err != nil {
		return RedisConfig{}, fmt.Errorf("failed to unmarshal redis config: %w", err)
	}

	def := DefaultRedisConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	return cfg, nil
}

// RedisStore persists payloads in Redis under a configurable key prefix.
// Expiry is delegated to the server, so reads never see a stale value.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	logger     observability.Logger
}

var (
	_ Store     = (*RedisStore)(nil)
	_ KeyLister = (*RedisStore)(nil)
)

// NewRedisStore connects to Redis and verifies the connection with a ping.
// A nil logger falls back to a no-op implementation.
func NewRedisStore(cfg RedisConfig, logger observability.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	logger.Debug("connected to redis", map[string]interface{}{
		"address":  cfg.Address,
		"database": cfg.Database,
		"prefix":   cfg.KeyPrefix,
	})

	return &RedisStore{
		client:     client,
		prefix:     cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
		logger:     logger,
	}, nil
}

func (s *RedisStore) prefixed(key string) string {
	return s.prefix + key
}

// Read returns the payload stored under key.
func (s *RedisStore) Read(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefixed(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Write stores value under key for ttl. A non-positive ttl applies the
// configured default; a zero default leaves the key without expiry.
func (s *RedisStore) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, s.prefixed(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefixed(key)).Err(); err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	return nil
}

// ListKeys scans for keys matching the glob pattern. The store prefix is
// applied before the scan and stripped from the results, so callers only
// ever see their own key space. Matching uses the server's glob rules,
// which agree with the cache layer's for literal-and-star patterns.
func (s *RedisStore) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefixed(pattern), scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys for pattern %q: %w", pattern, err)
	}
	return keys, nil
}

// Ping verifies connectivity to the server.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
