package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis starts an in-process Redis server and returns a config
// pointing at it.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, RedisConfig) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultRedisConfig()
	cfg.Address = mr.Addr()
	cfg.KeyPrefix = "test:"
	return mr, cfg
}

func TestNewRedisStore(t *testing.T) {
	mr, cfg := setupMiniRedis(t)

	t.Run("successful connection", func(t *testing.T) {
		store, err := NewRedisStore(cfg, nil)
		require.NoError(t, err)
		require.NotNil(t, store)
		assert.NoError(t, store.Close())
	})

	t.Run("with password", func(t *testing.T) {
		mr.RequireAuth("sekrit")
		defer mr.RequireAuth("")

		_, err := NewRedisStore(cfg, nil)
		assert.Error(t, err)

		authed := cfg
		authed.Password = "sekrit"
		store, err := NewRedisStore(authed, nil)
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("unreachable address", func(t *testing.T) {
		bad := cfg
		bad.Address = "127.0.0.1:1"
		bad.DialTimeout = 100 * time.Millisecond

		store, err := NewRedisStore(bad, nil)
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func TestRedisStore_WriteAndRead(t *testing.T) {
	mr, cfg := setupMiniRedis(t)
	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "greeting", "hello", time.Minute))

	got, err := store.Read(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	// The configured prefix is applied on the wire
	mr.CheckGet(t, "test:greeting", "hello")
}

func TestRedisStore_Read_Missing(t *testing.T) {
	_, cfg := setupMiniRedis(t)
	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Read(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Write_DefaultTTL(t *testing.T) {
	mr, cfg := setupMiniRedis(t)
	cfg.DefaultTTL = time.Minute

	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "k", "v", 0))

	_, err = store.Read(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Write_NoExpiry(t *testing.T) {
	mr, cfg := setupMiniRedis(t)
	cfg.DefaultTTL = 0

	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "k", "v", 0))
	mr.FastForward(time.Hour)

	got, err := store.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestRedisStore_Expiration(t *testing.T) {
	mr, cfg := setupMiniRedis(t)
	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "ephemeral", "v", 50*time.Millisecond))

	_, err = store.Read(ctx, "ephemeral")
	require.NoError(t, err)

	mr.FastForward(100 * time.Millisecond)
	_, err = store.Read(ctx, "ephemeral")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Remove(t *testing.T) {
	_, cfg := setupMiniRedis(t)
	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "k", "v", 0))
	require.NoError(t, store.Remove(ctx, "k"))

	_, err = store.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Removing an absent key is not an error
	assert.NoError(t, store.Remove(ctx, "k"))
}

func TestRedisStore_ListKeys(t *testing.T) {
	mr, cfg := setupMiniRedis(t)
	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "user:1", "alice", 0))
	require.NoError(t, store.Write(ctx, "user:2", "bob", 0))
	require.NoError(t, store.Write(ctx, "session:9", "token", 0))

	// Keys outside this store's prefix are invisible to the scan
	require.NoError(t, mr.Set("other:user:7", "intruder"))

	keys, err := store.ListKeys(ctx, "user:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)

	keys, err = store.ListKeys(ctx, "*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1", "user:2", "session:9"}, keys)

	keys, err = store.ListKeys(ctx, "order:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisStore_Ping(t *testing.T) {
	mr, cfg := setupMiniRedis(t)
	store, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	assert.NoError(t, store.Ping(ctx))

	mr.Close()
	assert.Error(t, store.Ping(ctx))
}

func TestLoadRedisConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set("storage.redis.address", "redis.internal:6400")
	v.Set("storage.redis.key_prefix", "svc:")
	v.Set("storage.redis.default_ttl", "10m")
	v.Set("storage.redis.pool_size", 20)

	cfg, err := LoadRedisConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6400", cfg.Address)
	assert.Equal(t, "svc:", cfg.KeyPrefix)
	assert.Equal(t, 10*time.Minute, cfg.DefaultTTL)
	assert.Equal(t, 20, cfg.PoolSize)
	// Unset fields take defaults
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}

func TestLoadRedisConfigFromViper_Defaults(t *testing.T) {
	cfg, err := LoadRedisConfigFromViper(viper.New())
	require.NoError(t, err)

	def := DefaultRedisConfig()
	assert.Equal(t, def.Address, cfg.Address)
	assert.Equal(t, def.KeyPrefix, cfg.KeyPrefix)
	assert.Equal(t, def.DefaultTTL, cfg.DefaultTTL)
}
