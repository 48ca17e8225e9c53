package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

// flakyStore fails a set number of calls with errBackend before behaving
// normally.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	closed   bool
	data     map[string]string
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{failures: failures, data: make(map[string]string)}
}

func (f *flakyStore) failNext() bool {
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func (f *flakyStore) Read(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext() {
		return "", errBackend
	}
	value, ok := f.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (f *flakyStore) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext() {
		return errBackend
	}
	f.data[key] = value
	return nil
}

func (f *flakyStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext() {
		return errBackend
	}
	delete(f.data, key)
	return nil
}

func (f *flakyStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *flakyStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyStore) recover(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = 0
	f.data[key] = value
}

// listingStore adds key enumeration to flakyStore.
type listingStore struct {
	*flakyStore
}

func (l *listingStore) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failNext() {
		return nil, errBackend
	}
	keys := make([]string, 0, len(l.data))
	for key := range l.data {
		keys = append(keys, key)
	}
	return keys, nil
}

func testResilientConfig() ResilientConfig {
	return ResilientConfig{
		Name:                "test-store",
		MaxRetries:          2,
		InitialInterval:     time.Millisecond,
		MaxInterval:         2 * time.Millisecond,
		BreakerTimeout:      50 * time.Millisecond,
		BreakerMinRequests:  3,
		BreakerFailureRatio: 0.6,
	}
}

func TestResilientStore_PassesThrough(t *testing.T) {
	inner := newFlakyStore(0)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)
	ctx := context.Background()

	require.NoError(t, rs.Write(ctx, "k", "v", time.Minute))

	got, err := rs.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, rs.Remove(ctx, "k"))
	_, err = rs.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResilientStore_RetriesUntilSuccess(t *testing.T) {
	inner := newFlakyStore(2)
	inner.data["k"] = "v"
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)

	got, err := rs.Read(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	// Two failures plus the succeeding attempt
	assert.Equal(t, 3, inner.callCount())
}

func TestResilientStore_NotFoundSkipsRetries(t *testing.T) {
	inner := newFlakyStore(0)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)

	_, err := rs.Read(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, inner.callCount())
}

func TestResilientStore_NotFoundDoesNotTripBreaker(t *testing.T) {
	inner := newFlakyStore(0)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := rs.Read(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, rs.State())
}

func TestResilientStore_ExhaustsRetries(t *testing.T) {
	inner := newFlakyStore(100)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)

	_, err := rs.Read(context.Background(), "k")
	assert.ErrorIs(t, err, errBackend)
	// MaxRetries of 2 means three attempts in total
	assert.Equal(t, 3, inner.callCount())
}

func TestResilientStore_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	inner := newFlakyStore(100)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rs.Read(ctx, "k")
		assert.ErrorIs(t, err, errBackend)
	}
	require.Equal(t, gobreaker.StateOpen, rs.State())
	callsWhenOpened := inner.callCount()

	_, err := rs.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	// The rejected call never reached the backend
	assert.Equal(t, callsWhenOpened, inner.callCount())
}

func TestResilientStore_BreakerRecovers(t *testing.T) {
	inner := newFlakyStore(100)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = rs.Read(ctx, "k")
	}
	require.Equal(t, gobreaker.StateOpen, rs.State())

	inner.recover("k", "v")
	time.Sleep(60 * time.Millisecond)

	got, err := rs.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, gobreaker.StateClosed, rs.State())
}

func TestResilientStore_ListKeys(t *testing.T) {
	inner := &listingStore{flakyStore: newFlakyStore(0)}
	inner.data["a"] = "1"
	inner.data["b"] = "2"
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)

	keys, err := rs.ListKeys(context.Background(), "*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestResilientStore_ListKeys_NotSupported(t *testing.T) {
	inner := newFlakyStore(0)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)

	_, err := rs.ListKeys(context.Background(), "*")
	assert.ErrorIs(t, err, ErrNotSupported)
	// The unsupported call never entered the breaker
	assert.Equal(t, 0, inner.callCount())
}

func TestResilientStore_Close(t *testing.T) {
	inner := newFlakyStore(0)
	rs := NewResilientStore(inner, testResilientConfig(), nil, nil)

	require.NoError(t, rs.Close())
	assert.True(t, inner.closed)
}

func TestResilientConfig_Defaults(t *testing.T) {
	rs := NewResilientStore(newFlakyStore(0), ResilientConfig{}, nil, nil)

	assert.Equal(t, DefaultResilientConfig(), rs.cfg)
}
