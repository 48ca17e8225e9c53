package storage

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/developer-mesh/cachekit/cache"
)

// DefaultMaxItems bounds a MemoryStore when no capacity is given.
const DefaultMaxItems = 10000

// memoryItem pairs a payload with its expiry instant. A zero expiry means
// the item lives until evicted.
type memoryItem struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a bounded in-process Store. Capacity pressure evicts in
// least-recently-used order; expired items are dropped on read. It stands
// in for a shared backend in tests and single-process deployments.
type MemoryStore struct {
	items      *lru.Cache[string, memoryItem]
	patterns   *cache.PatternMatcher
	defaultTTL time.Duration
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ KeyLister = (*MemoryStore)(nil)
)

// NewMemoryStore creates a store holding at most maxItems entries. A
// non-positive maxItems falls back to DefaultMaxItems. defaultTTL is the
// retention applied when Write receives a non-positive ttl; zero keeps
// items until evicted.
func NewMemoryStore(maxItems int, defaultTTL time.Duration) (*MemoryStore, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	items, err := lru.New[string, memoryItem](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &MemoryStore{
		items:      items,
		patterns:   cache.NewPatternMatcher(),
		defaultTTL: defaultTTL,
	}, nil
}

// Read returns the payload stored under key, dropping it when expired.
func (s *MemoryStore) Read(ctx context.Context, key string) (string, error) {
	item, ok := s.items.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		s.items.Remove(key)
		return "", ErrNotFound
	}
	return item.value, nil
}

// Write stores value under key for ttl.
func (s *MemoryStore) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	s.items.Add(key, item)
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.items.Remove(key)
	return nil
}

// ListKeys returns the live keys matching the glob pattern. Peek keeps the
// scan from disturbing recency order.
func (s *MemoryStore) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	now := time.Now()
	var keys []string
	for _, key := range s.items.Keys() {
		item, ok := s.items.Peek(key)
		if !ok {
			continue
		}
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			continue
		}
		if s.patterns.Matches(key, pattern) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Len reports the number of items currently held, including any that have
// expired but not yet been dropped.
func (s *MemoryStore) Len() int {
	return s.items.Len()
}

// Close discards all items.
func (s *MemoryStore) Close() error {
	s.items.Purge()
	return nil
}
