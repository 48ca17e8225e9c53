package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts PrometheusOptions) *PrometheusMetricsClient {
	t.Helper()

	// Fresh registry per test to avoid duplicate registration
	opts.Registerer = prometheus.NewRegistry()
	return NewPrometheusMetricsClient(opts)
}

func TestNewPrometheusMetricsClient(t *testing.T) {
	client := newTestClient(t, PrometheusOptions{Namespace: "cachekit", Subsystem: "test"})
	require.NotNil(t, client)

	// Default cache metrics are registered eagerly
	assert.Contains(t, client.counters, "cache_operations_total")
	assert.Contains(t, client.counters, "cache_evictions_total")
	assert.Contains(t, client.histograms, "cache_operation_duration_seconds")
	assert.Contains(t, client.gauges, "cache_entries")
}

func TestPrometheusMetricsClient_RecordCacheOperation(t *testing.T) {
	client := newTestClient(t, PrometheusOptions{Namespace: "cachekit"})

	client.RecordCacheOperation("get", true, 5*time.Millisecond)
	client.RecordCacheOperation("get", true, 3*time.Millisecond)
	client.RecordCacheOperation("get", false, 2*time.Millisecond)

	hits := testutil.ToFloat64(client.counters["cache_operations_total"].With(prometheus.Labels{
		"operation": "get",
		"result":    "hit",
	}))
	misses := testutil.ToFloat64(client.counters["cache_operations_total"].With(prometheus.Labels{
		"operation": "get",
		"result":    "miss",
	}))

	assert.Equal(t, 2.0, hits)
	assert.Equal(t, 1.0, misses)
	assert.Equal(t, 1, testutil.CollectAndCount(client.histograms["cache_operation_duration_seconds"]))
}

func TestPrometheusMetricsClient_CounterReuse(t *testing.T) {
	client := newTestClient(t, PrometheusOptions{Namespace: "cachekit"})

	labels := map[string]string{"policy": "lru"}
	client.IncrementCounterWithLabels("cache_evictions_total", 1, labels)
	client.IncrementCounterWithLabels("cache_evictions_total", 1, labels)

	value := testutil.ToFloat64(client.counters["cache_evictions_total"].With(prometheus.Labels(labels)))
	assert.Equal(t, 2.0, value)
}

func TestPrometheusMetricsClient_CommonLabels(t *testing.T) {
	client := newTestClient(t, PrometheusOptions{
		Namespace:    "cachekit",
		CommonLabels: map[string]string{"service": "edge"},
	})

	client.RecordCacheOperation("set", false, time.Millisecond)

	value := testutil.ToFloat64(client.counters["cache_operations_total"].With(prometheus.Labels{
		"operation": "set",
		"result":    "miss",
		"service":   "edge",
	}))
	assert.Equal(t, 1.0, value)
}

func TestPrometheusMetricsClient_Gauge(t *testing.T) {
	client := newTestClient(t, PrometheusOptions{Namespace: "cachekit"})

	client.RecordGauge("cache_entries", 42, map[string]string{"cache": "sessions"})
	client.RecordGauge("cache_entries", 17, map[string]string{"cache": "sessions"})

	value := testutil.ToFloat64(client.gauges["cache_entries"].With(prometheus.Labels{"cache": "sessions"}))
	assert.Equal(t, 17.0, value)
}

func TestPrometheusMetricsClient_StartTimer(t *testing.T) {
	client := newTestClient(t, PrometheusOptions{Namespace: "cachekit"})

	stop := client.StartTimer("sweep_duration_seconds", map[string]string{"cache": "sessions"})
	stop()

	require.Contains(t, client.histograms, "sweep_duration_seconds")
	assert.Equal(t, 1, testutil.CollectAndCount(client.histograms["sweep_duration_seconds"]))
}
