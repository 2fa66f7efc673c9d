package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss is returned by backends when a key is absent or expired.
var ErrCacheMiss = errors.New("analytics: cache miss")

// Operation names a cached aggregate. It is part of every cache key and the
// lookup key of the TTL policy.
type Operation string

const (
	OpSalesSummary          Operation = "sales_summary"
	OpActiveStores          Operation = "active_stores"
	OpTimeSeries            Operation = "time_series"
	OpHourlyDistribution    Operation = "hourly"
	OpWeekdayHourly         Operation = "weekday_hourly"
	OpTopProducts           Operation = "top_products"
	OpStorePerformance      Operation = "store_performance"
	OpChannelPerformance    Operation = "channel_performance"
	OpPaymentMix            Operation = "payment_mix"
	OpPopularCustomizations Operation = "popular_customizations"
	OpCustomizedProducts    Operation = "customized_products"
	OpDeliveryRegions       Operation = "delivery_regions"
)

// Backend stores opaque payloads under generation scoped keys. A generation
// changes on every InvalidateAll; entries written under an older generation
// must never be served afterwards.
type Backend interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, key string) ([]byte, error)
	Set(ctx context.Context, gen int64, key string, value []byte, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
}

// TTLPolicy maps operations to their time to live.
type TTLPolicy struct {
	Default time.Duration
	PerOp   map[Operation]time.Duration
}

// TTL resolves the lifetime for op.
func (p TTLPolicy) TTL(op Operation) time.Duration {
	if ttl, ok := p.PerOp[op]; ok && ttl > 0 {
		return ttl
	}
	if p.Default > 0 {
		return p.Default
	}
	return 5 * time.Minute
}

// DefaultTTLPolicy mirrors how fast each aggregate goes stale.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default: 5 * time.Minute,
		PerOp: map[Operation]time.Duration{
			OpSalesSummary:          15 * time.Minute,
			OpTimeSeries:            15 * time.Minute,
			OpTopProducts:           30 * time.Minute,
			OpHourlyDistribution:    5 * time.Minute,
			OpStorePerformance:      5 * time.Minute,
			OpChannelPerformance:    5 * time.Minute,
			OpWeekdayHourly:         10 * time.Minute,
			OpPaymentMix:            10 * time.Minute,
			OpPopularCustomizations: 10 * time.Minute,
			OpCustomizedProducts:    10 * time.Minute,
			OpDeliveryRegions:       10 * time.Minute,
			OpActiveStores:          time.Hour,
		},
	}
}

// ResultCache memoises aggregate results. Backend failures are never fatal:
// reads fall back to the producer and writes are dropped with a warning.
type ResultCache struct {
	backend Backend
	ttls    TTLPolicy
	logger  *slog.Logger
	metrics *CacheMetrics
	group   singleflight.Group
	// flightTimeout bounds a shared producer, which outlives the caller
	// that started it.
	flightTimeout time.Duration
}

const defaultFlightTimeout = 30 * time.Second

// CacheOption customises a ResultCache.
type CacheOption func(*ResultCache)

// WithCacheLogger sets the logger used for fallback warnings.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *ResultCache) { c.logger = logger }
}

// WithFlightTimeout bounds a shared miss computation. Zero keeps the default.
func WithFlightTimeout(d time.Duration) CacheOption {
	return func(c *ResultCache) {
		if d > 0 {
			c.flightTimeout = d
		}
	}
}

// WithCacheMetrics attaches Prometheus counters.
func WithCacheMetrics(m *CacheMetrics) CacheOption {
	return func(c *ResultCache) { c.metrics = m }
}

// NewResultCache wires a backend with a TTL policy. A nil backend disables caching.
func NewResultCache(backend Backend, ttls TTLPolicy, opts ...CacheOption) *ResultCache {
	if backend == nil {
		backend = NoopBackend{}
	}
	c := &ResultCache{backend: backend, ttls: ttls, flightTimeout: defaultFlightTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Fetch loads the value cached for (op, key) into dest, invoking producer on
// a miss. Concurrent misses for the same key share one producer call, which
// ignores the cancellation of the caller that started it and is bounded by
// the flight timeout instead. Producer errors are returned and never cached.
func (c *ResultCache) Fetch(ctx context.Context, op Operation, key string, dest interface{}, producer func(context.Context) (interface{}, error)) error {
	if producer == nil {
		return errors.New("analytics: cache producer required")
	}
	if c == nil {
		return produceInto(ctx, dest, producer)
	}

	gen, err := c.backend.Generation(ctx)
	if err != nil {
		c.warn(op, "cache generation", err)
		return produceInto(ctx, dest, producer)
	}

	payload, err := c.backend.Get(ctx, gen, key)
	switch {
	case err == nil:
		jsonErr := json.Unmarshal(payload, dest)
		if jsonErr == nil {
			c.metrics.hit(op)
			return nil
		}
		c.warn(op, "decode cached payload", jsonErr)
	case !errors.Is(err, ErrCacheMiss):
		c.warn(op, "cache get", err)
		return produceInto(ctx, dest, producer)
	}
	c.metrics.miss(op)

	flightKey := strconv.FormatInt(gen, 10) + "/" + key
	resultCh := c.group.DoChan(flightKey, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		value, err := producer(flightCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("analytics: encode %s result: %w", op, err)
		}
		if err := c.backend.Set(flightCtx, gen, key, raw, c.ttls.TTL(op)); err != nil {
			c.warn(op, "cache set", err)
		}
		return raw, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-resultCh:
	}
	if res.Err != nil {
		return res.Err
	}
	return json.Unmarshal(res.Val.([]byte), dest)
}

// InvalidateAll discards every cached entry. Later reads recompute.
func (c *ResultCache) InvalidateAll(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.backend.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("%w: invalidate: %w", ErrCacheUnavailable, err)
	}
	c.logger.Info("analytics cache invalidated")
	return nil
}

func (c *ResultCache) warn(op Operation, msg string, err error) {
	c.metrics.failure(op)
	c.logger.Warn(msg, slog.String("operation", string(op)), slog.Any("error", err))
}

// cached is the typed entry point used by the aggregation store.
func cached[T any](ctx context.Context, c *ResultCache, op Operation, key string, producer func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.Fetch(ctx, op, key, &out, func(ctx context.Context) (interface{}, error) {
		return producer(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func produceInto(ctx context.Context, dest interface{}, producer func(context.Context) (interface{}, error)) error {
	value, err := producer(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// cacheKey renders "analytics:<op>:<filter token>[:extra...]".
func cacheKey(op Operation, spec FilterSpec, extras ...string) string {
	parts := append([]string{"analytics", string(op), spec.CacheToken()}, extras...)
	return strings.Join(parts, ":")
}

// NoopBackend never stores anything.
type NoopBackend struct{}

func (NoopBackend) Generation(context.Context) (int64, error) { return 0, nil }

func (NoopBackend) Get(context.Context, int64, string) ([]byte, error) { return nil, ErrCacheMiss }

func (NoopBackend) Set(context.Context, int64, string, []byte, time.Duration) error { return nil }

func (NoopBackend) InvalidateAll(context.Context) error { return nil }
