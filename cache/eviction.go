package cache

import "fmt"

// Policy identifies one of the built-in eviction strategies. The set is
// closed: configuration selects a policy by name and NewStrategy maps it to
// an implementation.
type Policy string

// Built-in eviction policies
const (
	// PolicyLRU removes the entry with the oldest last access.
	PolicyLRU Policy = "lru"
	// PolicyLFU removes the entry with the fewest recorded accesses.
	PolicyLFU Policy = "lfu"
	// PolicyFIFO removes the earliest inserted entry.
	PolicyFIFO Policy = "fifo"
	// PolicyTTL removes the entry closest to expiring, expired entries first.
	PolicyTTL Policy = "ttl"
)

// Strategy defines the interface for cache eviction strategies. SelectVictim
// scans the current entry set and returns the key to remove; ok is false
// only when the set is empty. Implementations must treat the map and its
// entries as read-only.
type Strategy[V any] interface {
	SelectVictim(entries map[string]*Entry[V]) (string, bool)
}

// NewStrategy returns the strategy implementing the named policy. An empty
// policy selects LRU; an unrecognized one fails with ErrUnknownPolicy.
func NewStrategy[V any](policy Policy) (Strategy[V], error) {
	switch policy {
	case PolicyLRU, "":
		return LRUStrategy[V]{}, nil
	case PolicyLFU:
		return LFUStrategy[V]{}, nil
	case PolicyFIFO:
		return FIFOStrategy[V]{}, nil
	case PolicyTTL:
		return TTLStrategy[V]{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
}

// LRUStrategy selects the entry with the minimum last access time. Entries
// that were never read keep their creation-time access stamp, so untouched
// entries age out like any other. Ties resolve to the earliest inserted.
type LRUStrategy[V any] struct{}

// SelectVictim implements Strategy.
func (LRUStrategy[V]) SelectVictim(entries map[string]*Entry[V]) (string, bool) {
	var (
		victim string
		best   *Entry[V]
	)
	for key, entry := range entries {
		if best == nil ||
			entry.LastAccessedAt.Before(best.LastAccessedAt) ||
			(entry.LastAccessedAt.Equal(best.LastAccessedAt) && entry.seq < best.seq) {
			victim, best = key, entry
		}
	}
	return victim, best != nil
}

// LFUStrategy selects the entry with the minimum access count. Ties resolve
// to the earliest inserted.
type LFUStrategy[V any] struct{}

// SelectVictim implements Strategy.
func (LFUStrategy[V]) SelectVictim(entries map[string]*Entry[V]) (string, bool) {
	var (
		victim string
		best   *Entry[V]
	)
	for key, entry := range entries {
		if best == nil ||
			entry.AccessCount < best.AccessCount ||
			(entry.AccessCount == best.AccessCount && entry.seq < best.seq) {
			victim, best = key, entry
		}
	}
	return victim, best != nil
}

// FIFOStrategy selects the earliest inserted entry. Overwriting a key
// assigns a fresh insertion sequence, so an updated entry counts as new.
type FIFOStrategy[V any] struct{}

// SelectVictim implements Strategy.
func (FIFOStrategy[V]) SelectVictim(entries map[string]*Entry[V]) (string, bool) {
	var (
		victim string
		best   *Entry[V]
	)
	for key, entry := range entries {
		if best == nil || entry.seq < best.seq {
			victim, best = key, entry
		}
	}
	return victim, best != nil
}

// TTLStrategy selects the entry with the nearest expiry instant. Entries
// already past their TTL sort ahead of live ones. Ties resolve to the
// earliest inserted.
type TTLStrategy[V any] struct{}

// SelectVictim implements Strategy.
func (TTLStrategy[V]) SelectVictim(entries map[string]*Entry[V]) (string, bool) {
	var (
		victim string
		best   *Entry[V]
	)
	for key, entry := range entries {
		if best == nil ||
			entry.ExpiresAt().Before(best.ExpiresAt()) ||
			(entry.ExpiresAt().Equal(best.ExpiresAt()) && entry.seq < best.seq) {
			victim, best = key, entry
		}
	}
	return victim, best != nil
}
