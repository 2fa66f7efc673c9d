package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
	platformcache "github.com/odyssey-erp/restaurant-analytics/internal/platform/cache"
	platformdb "github.com/odyssey-erp/restaurant-analytics/internal/platform/db"
)

const applicationName = "restaurant-analytics"

// Analytics bundles the wired analytics core shared by the API and the worker.
type Analytics struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Cache     *analytics.ResultCache
	Service   *analytics.Service
	Dashboard *analytics.Dashboard
	Detector  *analytics.AnomalyDetector

	logger *slog.Logger
}

// BuildAnalytics connects to Postgres and the configured cache backend and
// wires the dashboard. A cache that cannot be reached degrades to the
// in-process backend; an unreachable database is fatal.
func BuildAnalytics(ctx context.Context, cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*Analytics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := platformdb.New(ctx, cfg.PGDSN, platformdb.Options{
		MaxConns:        cfg.PGMaxConns,
		ApplicationName: applicationName,
		ReadOnly:        true,
	})
	if err != nil {
		return nil, err
	}

	a := &Analytics{Pool: pool, logger: logger}
	backend := a.cacheBackend(ctx, cfg)

	cacheMetrics, err := analytics.NewCacheMetrics(reg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: cache metrics: %w", err)
	}
	a.Cache = analytics.NewResultCache(backend, cfg.TTLPolicy(),
		analytics.WithCacheLogger(logger),
		analytics.WithCacheMetrics(cacheMetrics),
		analytics.WithFlightTimeout(cfg.AppRequestTimeout),
	)
	a.Service = analytics.NewService(analyticsdb.New(pool), a.Cache,
		analytics.WithQueryTimeout(cfg.QueryTimeout),
		analytics.WithLogger(logger),
	)
	engine := analytics.NewInsightEngine(cfg.Thresholds(), analytics.WithoutRules(cfg.DisabledRules...))
	a.Dashboard = analytics.NewDashboard(a.Service, a.Cache,
		analytics.WithDashboardConfig(cfg.DashboardConfig()),
		analytics.WithInsightEngine(engine),
		analytics.WithDashboardLogger(logger),
	)
	a.Detector = analytics.NewAnomalyDetector(a.Service)
	return a, nil
}

func (a *Analytics) cacheBackend(ctx context.Context, cfg *Config) analytics.Backend {
	switch cfg.CacheBackend {
	case CacheBackendNone:
		a.logger.Info("analytics cache disabled")
		return nil
	case CacheBackendMemory:
		mem := analytics.NewMemoryBackend(analytics.WithMaxEntries(cfg.CacheMaxEntries))
		a.followInvalidations(ctx, cfg, mem)
		return mem
	}

	client, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		a.logger.Warn("redis unavailable, using in-process cache", slog.Any("error", err))
		return analytics.NewMemoryBackend(analytics.WithMaxEntries(cfg.CacheMaxEntries))
	}
	a.Redis = client
	return analytics.NewRedisBackend(client)
}

// followInvalidations drops local entries whenever another process bumps the
// shared cache version. Without Redis the memory cache stays process local.
func (a *Analytics) followInvalidations(ctx context.Context, cfg *Config, mem *analytics.MemoryBackend) {
	if cfg.RedisAddr == "" {
		return
	}
	client, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		a.logger.Warn("redis unavailable, cache invalidations stay local", slog.Any("error", err))
		return
	}
	a.Redis = client
	err = analytics.NewRedisBackend(client).ListenForInvalidation(ctx, func(version int64) {
		if err := mem.InvalidateAll(context.Background()); err == nil {
			a.logger.Info("local analytics cache dropped", slog.Int64("version", version))
		}
	})
	if err != nil {
		a.logger.Warn("subscribe cache invalidations", slog.Any("error", err))
	}
}

// ReadinessChecks probes the database and, when connected, Redis.
func (a *Analytics) ReadinessChecks() []ReadinessCheck {
	checks := []ReadinessCheck{{Name: "postgres", Check: a.Pool.Ping}}
	if a.Redis != nil {
		checks = append(checks, ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Close releases the pool and the Redis client.
func (a *Analytics) Close() {
	if a == nil {
		return
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
