// Package storage provides backing stores for cached payloads: a bounded
// in-memory store, a Redis-backed store, and a resilience wrapper that adds
// retries and circuit breaking on top of any other store.
//
// Stores move opaque string payloads and leave encoding to the caller. They
// are the second tier behind the in-process cache package; see the tiered
// package for the composition.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is not present in the store.
	// Wrappers treat it as a valid answer rather than a fault.
	ErrNotFound = errors.New("key not found in store")

	// ErrNotSupported is returned when a store cannot perform the
	// requested operation, such as listing keys on a backend that
	// cannot enumerate them.
	ErrNotSupported = errors.New("operation not supported by store")
)

// Store is a minimal key-value backend for cached payloads.
//
// A non-positive ttl on Write applies the store's default retention.
// Read returns ErrNotFound for absent or expired keys; Remove of an
// absent key is not an error.
type Store interface {
	// Read returns the payload stored under key.
	Read(ctx context.Context, key string) (string, error)

	// Write stores value under key for ttl.
	Write(ctx context.Context, key, value string, ttl time.Duration) error

	// Remove deletes key from the store.
	Remove(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// KeyLister is implemented by stores that can enumerate keys matching a
// glob pattern. Pattern invalidation across a shared tier requires it.
type KeyLister interface {
	ListKeys(ctx context.Context, pattern string) ([]string, error)
}
