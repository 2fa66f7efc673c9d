package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
	jobmetrics "github.com/odyssey-erp/restaurant-analytics/internal/jobs"
)

const defaultWarmupWindowDays = 30

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StoreLister enumerates the stores per-store jobs fan out over.
type StoreLister interface {
	ActiveStores(ctx context.Context) ([]analyticsdb.StoreRow, error)
}

// DashboardLoader computes a dashboard snapshot, populating the cache as a
// side effect.
type DashboardLoader interface {
	Load(ctx context.Context, spec analytics.FilterSpec) (analytics.DashboardSnapshot, error)
}

// CacheWarmupJob pre-populates the analytics cache for the chain and,
// optionally, each active store.
type CacheWarmupJob struct {
	Dashboard    DashboardLoader
	Stores       StoreLister
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	ScopeTimeout time.Duration
	clock        func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warm-up handler.
func NewCacheWarmupJob(dashboard DashboardLoader, stores StoreLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{
		Dashboard:    dashboard,
		Stores:       stores,
		Logger:       logger,
		Metrics:      metrics,
		ScopeTimeout: 20 * time.Second,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cache warm-up tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Dashboard == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = defaultWarmupWindowDays
	}

	tracker := j.metrics().Track(TaskAnalyticsCacheWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger().With(slog.Int("window_days", payload.WindowDays), slog.Bool("per_store", payload.PerStore))
	logger.Info("starting cache warmup")

	to := start
	from := to.AddDate(0, 0, -(payload.WindowDays - 1))
	chain, err := analytics.NewFilterSpec(from, to)
	if err != nil {
		return asynq.SkipRetry
	}
	if err := j.warm(ctx, chain); err != nil {
		logger.Error("warm chain dashboard", slog.Any("error", err))
		return err
	}
	j.metrics().AddWarmed("chain", 1)

	warmed := 0
	if payload.PerStore && j.Stores != nil {
		stores, err := j.Stores.ActiveStores(ctx)
		if err != nil {
			logger.Error("load active stores", slog.Any("error", err))
			return err
		}
		for _, store := range stores {
			if err := j.warm(ctx, chain.WithStore(store.ID)); err != nil {
				if errors.Is(err, analytics.ErrStorageUnavailable) {
					logger.Error("warm store dashboard", slog.Int64("store_id", store.ID), slog.Any("error", err))
					return err
				}
				logger.Warn("warm store dashboard", slog.Int64("store_id", store.ID), slog.Any("error", err))
				j.metrics().AddScopeFailure(TaskAnalyticsCacheWarmup, store.ID)
				continue
			}
			warmed++
		}
		j.metrics().AddWarmed("store", warmed)
	}

	logger.Info("completed cache warmup", slog.Int("stores", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *CacheWarmupJob) warm(ctx context.Context, spec analytics.FilterSpec) error {
	if j.ScopeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.ScopeTimeout)
		defer cancel()
	}
	_, err := j.Dashboard.Load(ctx, spec)
	return err
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsCacheWarmup))
}

func (j *CacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
