package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/developer-mesh/cachekit/observability"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls
// to the wrapped store.
var ErrCircuitOpen = errors.New("store circuit breaker is open")

// ResilientConfig tunes the retry and circuit breaking behavior of a
// ResilientStore. The zero value is usable; every field falls back to the
// default below.
type ResilientConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string `mapstructure:"name"`
	// MaxRetries bounds the retry attempts made after a failed call.
	MaxRetries int `mapstructure:"max_retries"`
	// InitialInterval is the first retry delay. Later delays grow
	// exponentially up to MaxInterval.
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	// BreakerTimeout is how long an open breaker waits before letting a
	// probe request through.
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	// BreakerMinRequests and BreakerFailureRatio decide when the breaker
	// trips: at least BreakerMinRequests observed and the failure ratio
	// at or above BreakerFailureRatio.
	BreakerMinRequests  uint32  `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64 `mapstructure:"breaker_failure_ratio"`
}

// DefaultResilientConfig returns the settings used for unset fields.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Name:                "store",
		MaxRetries:          3,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		BreakerTimeout:      30 * time.Second,
		BreakerMinRequests:  3,
		BreakerFailureRatio: 0.6,
	}
}

func (c ResilientConfig) withDefaults() ResilientConfig {
	def := DefaultResilientConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = def.BreakerTimeout
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	return c
}

// ResilientStore wraps a Store with retries and a circuit breaker so a
// flaky backend degrades into fast, typed failures instead of hung callers.
//
// ErrNotFound is a domain answer, not a fault: it is never retried and
// never counts against the breaker.
type ResilientStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
	cfg     ResilientConfig
	logger  observability.Logger
	metrics observability.MetricsClient
}

var (
	_ Store     = (*ResilientStore)(nil)
	_ KeyLister = (*ResilientStore)(nil)
)

// NewResilientStore wraps inner with the given resilience settings. Nil
// logger and metrics fall back to no-op implementations.
func NewResilientStore(inner Store, cfg ResilientConfig, logger observability.Logger, metrics observability.MetricsClient) *ResilientStore {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.BreakerMinRequests && failureRatio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
			metrics.IncrementCounterWithLabels("store_circuit_transitions_total", 1, map[string]string{
				"name": name,
				"to":   to.String(),
			})
		},
	})

	return &ResilientStore{
		inner:   inner,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// isDomainErr reports whether err is an expected store answer rather than
// a backend fault. Domain errors are not retried and do not count against
// the breaker.
func isDomainErr(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotSupported)
}

// execute runs op through the breaker with exponential-backoff retries and
// maps breaker rejections to ErrCircuitOpen.
func (rs *ResilientStore) execute(ctx context.Context, operation string, op func() error) error {
	start := time.Now()
	var domainErr error

	_, err := rs.breaker.Execute(func() (interface{}, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = rs.cfg.InitialInterval
		b.MaxInterval = rs.cfg.MaxInterval

		retryErr := backoff.Retry(func() error {
			err := op()
			if isDomainErr(err) {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(rs.cfg.MaxRetries)), ctx))

		if isDomainErr(retryErr) {
			domainErr = retryErr
			return nil, nil
		}
		return nil, retryErr
	})

	rs.metrics.RecordDuration("store_operation_duration_seconds", time.Since(start), map[string]string{
		"name":      rs.cfg.Name,
		"operation": operation,
	})

	if domainErr != nil {
		return domainErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			rs.metrics.IncrementCounterWithLabels("store_circuit_rejections_total", 1, map[string]string{
				"name":      rs.cfg.Name,
				"operation": operation,
			})
			return fmt.Errorf("%w: %s rejected", ErrCircuitOpen, operation)
		}
		rs.logger.Warn("store operation failed after retries", map[string]interface{}{
			"name":      rs.cfg.Name,
			"operation": operation,
			"error":     err.Error(),
		})
		return err
	}
	return nil
}

// Read returns the payload stored under key.
func (rs *ResilientStore) Read(ctx context.Context, key string) (string, error) {
	var value string
	err := rs.execute(ctx, "read", func() error {
		v, err := rs.inner.Read(ctx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Write stores value under key for ttl.
func (rs *ResilientStore) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	return rs.execute(ctx, "write", func() error {
		return rs.inner.Write(ctx, key, value, ttl)
	})
}

// Remove deletes key.
func (rs *ResilientStore) Remove(ctx context.Context, key string) error {
	return rs.execute(ctx, "remove", func() error {
		return rs.inner.Remove(ctx, key)
	})
}

// ListKeys delegates to the wrapped store when it can enumerate keys and
// returns ErrNotSupported otherwise.
func (rs *ResilientStore) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	lister, ok := rs.inner.(KeyLister)
	if !ok {
		return nil, ErrNotSupported
	}
	var keys []string
	err := rs.execute(ctx, "list", func() error {
		found, err := lister.ListKeys(ctx, pattern)
		if err != nil {
			return err
		}
		keys = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// State exposes the breaker state for health reporting.
func (rs *ResilientStore) State() gobreaker.State {
	return rs.breaker.State()
}

// Close closes the wrapped store directly; shutdown should not be subject
// to retries or breaker state.
func (rs *ResilientStore) Close() error {
	return rs.inner.Close()
}
