package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies spans produced by this package.
const instrumentationName = "github.com/developer-mesh/cachekit/cache"

// TracedCache layers OpenTelemetry spans over a cache so its operations show
// up as children of the caller's request trace. The wrapped cache stays
// context-free; the wrapper is where a context.Context enters the picture,
// which is why its methods take one while CacheOps methods do not.
type TracedCache[V any] struct {
	inner  CacheOps[V]
	tracer trace.Tracer
}

// NewTracedCache wraps inner with tracing. A nil tracer falls back to the
// global provider, which is a no-op unless the application configured one.
func NewTracedCache[V any](inner CacheOps[V], tracer trace.Tracer) *TracedCache[V] {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	return &TracedCache[V]{
		inner:  inner,
		tracer: tracer,
	}
}

// Unwrap returns the cache behind the tracing layer.
func (tc *TracedCache[V]) Unwrap() CacheOps[V] {
	return tc.inner
}

// Set stores a value with a span recording the key and effective TTL.
func (tc *TracedCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	_, span := tc.tracer.Start(ctx, "cache.set",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
	)

	tc.inner.Set(key, value, ttl)
	span.SetStatus(codes.Ok, "cache set")
}

// Get retrieves a value with a span recording the key and whether it hit.
// A miss is an expected outcome, not a span error.
func (tc *TracedCache[V]) Get(ctx context.Context, key string) (V, bool) {
	_, span := tc.tracer.Start(ctx, "cache.get",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(attribute.String("cache.key", key))

	value, ok := tc.inner.Get(key)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if ok {
		span.SetStatus(codes.Ok, "cache hit")
	}
	return value, ok
}

// Has reports key presence with a span recording the outcome.
func (tc *TracedCache[V]) Has(ctx context.Context, key string) bool {
	_, span := tc.tracer.Start(ctx, "cache.has",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(attribute.String("cache.key", key))

	ok := tc.inner.Has(key)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	return ok
}

// Delete removes a key with a span recording whether anything was removed.
func (tc *TracedCache[V]) Delete(ctx context.Context, key string) bool {
	_, span := tc.tracer.Start(ctx, "cache.delete",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(attribute.String("cache.key", key))

	removed := tc.inner.Delete(key)
	span.SetAttributes(attribute.Bool("cache.deleted", removed))
	return removed
}

// InvalidatePattern removes matching keys with a span recording the pattern
// and how many entries it took out.
func (tc *TracedCache[V]) InvalidatePattern(ctx context.Context, pattern string) int {
	_, span := tc.tracer.Start(ctx, "cache.invalidate_pattern",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(attribute.String("cache.pattern", pattern))

	removed := tc.inner.InvalidatePattern(pattern)
	span.SetAttributes(attribute.Int("cache.invalidated", removed))
	return removed
}

// Clear empties the cache under a span.
func (tc *TracedCache[V]) Clear(ctx context.Context) {
	_, span := tc.tracer.Start(ctx, "cache.clear",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	tc.inner.Clear()
}

// Stats delegates without tracing; reading counters is not worth a span.
func (tc *TracedCache[V]) Stats() Stats {
	return tc.inner.Stats()
}

// Keys delegates without tracing.
func (tc *TracedCache[V]) Keys() []string {
	return tc.inner.Keys()
}

// Len delegates without tracing.
func (tc *TracedCache[V]) Len() int {
	return tc.inner.Len()
}
