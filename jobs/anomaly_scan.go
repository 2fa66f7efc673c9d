package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
	jobmetrics "github.com/odyssey-erp/restaurant-analytics/internal/jobs"
)

// Detector scores a filter's trailing window for anomalous days.
type Detector interface {
	Detect(ctx context.Context, spec analytics.FilterSpec, opts analytics.AnomalyOptions) ([]analytics.Anomaly, error)
}

// AnomalyScanJob runs anomaly detection per active store and reports what it
// finds through logs and metrics.
type AnomalyScanJob struct {
	Detector Detector
	Stores   StoreLister
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewAnomalyScanJob initialises the anomaly scan handler.
func NewAnomalyScanJob(detector Detector, stores StoreLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnomalyScanJob {
	return &AnomalyScanJob{
		Detector: detector,
		Stores:   stores,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the anomaly scan.
func (j *AnomalyScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Detector == nil || j.Stores == nil {
		return errors.New("anomaly scan: handler not configured")
	}
	var payload AnomalyScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	opts := analytics.AnomalyOptions{WindowDays: payload.WindowDays, ZThreshold: payload.Z}

	start := j.now()
	tracker := j.metrics().Track(TaskAnalyticsAnomalyScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int("window_days", payload.WindowDays),
		slog.Float64("z_threshold", payload.Z),
	)
	logger.Info("starting anomaly scan")

	stores, err := j.Stores.ActiveStores(ctx)
	if err != nil {
		logger.Error("load active stores", slog.Any("error", err))
		return err
	}

	anchor, err := analytics.NewFilterSpec(time.Time{}, start)
	if err != nil {
		return asynq.SkipRetry
	}

	total, skipped := 0, 0
	for _, store := range stores {
		found, err := j.Detector.Detect(ctx, anchor.WithStore(store.ID), opts)
		if err != nil {
			if errors.Is(err, analytics.ErrStorageUnavailable) || ctx.Err() != nil {
				logger.Error("scan store", slog.Int64("store_id", store.ID), slog.Any("error", err))
				return err
			}
			logger.Warn("scan store", slog.Int64("store_id", store.ID), slog.Any("error", err))
			j.metrics().AddScopeFailure(TaskAnalyticsAnomalyScan, store.ID)
			skipped++
			continue
		}
		for _, a := range found {
			logger.Warn("sales anomaly detected",
				slog.Int64("store_id", store.ID),
				slog.String("store", store.Name),
				slog.String("date", a.Date.Format("2006-01-02")),
				slog.String("direction", string(a.Direction)),
				slog.Float64("z_score_count", a.ZScoreCount),
				slog.Float64("z_score_revenue", a.ZScoreRevenue),
				slog.Float64("deviation_pct_count", a.DeviationPctCount),
				slog.Float64("deviation_pct_revenue", a.DeviationPctRevenue),
			)
			j.metrics().AddAnomalies(string(a.Direction), store.ID, 1)
		}
		total += len(found)
	}

	logger.Info("completed anomaly scan",
		slog.Int("stores", len(stores)),
		slog.Int("skipped", skipped),
		slog.Int("anomalies", total),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *AnomalyScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsAnomalyScan))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsAnomalyScan))
}

func (j *AnomalyScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AnomalyScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
