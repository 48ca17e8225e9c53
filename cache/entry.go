package cache

import "time"

// Entry holds one cached value with the metadata the eviction policies and
// expiration checks operate on. Entries are owned by their cache and mutated
// only under its lock; callbacks receive the entry after it has been removed,
// at which point it is safe to read without synchronization.
type Entry[V any] struct {
	Value          V             `json:"value"`
	CreatedAt      time.Time     `json:"created_at"`
	TTL            time.Duration `json:"ttl"`
	AccessCount    int64         `json:"access_count"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`

	// seq is the monotonic insertion sequence. Go maps do not preserve
	// insertion order, so the sequence carries it for FIFO selection and
	// ordered key listings.
	seq uint64
}

// ExpiresAt returns the instant the entry becomes stale.
func (e *Entry[V]) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// expired reports whether the entry is stale at the given instant. An entry
// is live through the full extent of its TTL and stale strictly after it.
func (e *Entry[V]) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// EntryCallback is invoked with the key and removed entry when a cache
// removes an entry on eviction or lazy expiration. Callbacks run after the
// cache's lock has been released, so they may call back into the cache.
type EntryCallback[V any] func(key string, entry *Entry[V])
