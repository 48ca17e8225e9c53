package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of a cache's counters. Size mirrors the
// current entry count; the remaining counters grow monotonically until the
// tracker is reset.
type Stats struct {
	Size        int64 `json:"size"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// HitRate returns the fraction of lookups that were hits, or 0 when no
// lookups have been recorded.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StatsTracker accumulates cache counters. It is kept separate from the
// cache engine so callers can inspect or swap it independently. All methods
// are safe for concurrent use.
type StatsTracker struct {
	size        atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// NewStatsTracker creates a tracker with all counters at zero.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// RecordHit counts one successful lookup.
func (t *StatsTracker) RecordHit() {
	t.hits.Add(1)
}

// RecordMiss counts one failed lookup.
func (t *StatsTracker) RecordMiss() {
	t.misses.Add(1)
}

// RecordEviction counts one capacity eviction.
func (t *StatsTracker) RecordEviction() {
	t.evictions.Add(1)
}

// RecordExpiration counts one TTL expiration.
func (t *StatsTracker) RecordExpiration() {
	t.expirations.Add(1)
}

// SetSize records the current entry count.
func (t *StatsTracker) SetSize(n int64) {
	t.size.Store(n)
}

// Snapshot returns a copy of the current counters. Mutating the result has
// no effect on the tracker.
func (t *StatsTracker) Snapshot() Stats {
	return Stats{
		Size:        t.size.Load(),
		Hits:        t.hits.Load(),
		Misses:      t.misses.Load(),
		Evictions:   t.evictions.Load(),
		Expirations: t.expirations.Load(),
	}
}

// Reset zeroes every counter, including size.
func (t *StatsTracker) Reset() {
	t.size.Store(0)
	t.hits.Store(0)
	t.misses.Store(0)
	t.evictions.Store(0)
	t.expirations.Store(0)
}
