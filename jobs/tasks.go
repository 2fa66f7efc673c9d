package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnalyticsCacheWarmup loads the default dashboards so the first
	// interactive request is served from cache.
	TaskAnalyticsCacheWarmup = "analytics:cache_warmup"
	// TaskAnalyticsAnomalyScan runs anomaly detection for every active store.
	TaskAnalyticsAnomalyScan = "analytics:anomaly_scan"
)

// CacheWarmupPayload selects the warm-up window.
type CacheWarmupPayload struct {
	WindowDays int  `json:"window_days"`
	PerStore   bool `json:"per_store"`
}

// AnomalyScanPayload tunes a scan run. Zero values use the detector defaults.
type AnomalyScanPayload struct {
	WindowDays int     `json:"window_days"`
	Z          float64 `json:"z"`
}

// NewCacheWarmupTask builds a warm-up task.
func NewCacheWarmupTask(windowDays int, perStore bool) (*asynq.Task, error) {
	data, err := json.Marshal(CacheWarmupPayload{WindowDays: windowDays, PerStore: perStore})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsCacheWarmup, data), nil
}

// NewAnomalyScanTask builds an anomaly scan task.
func NewAnomalyScanTask(windowDays int, z float64) (*asynq.Task, error) {
	data, err := json.Marshal(AnomalyScanPayload{WindowDays: windowDays, Z: z})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsAnomalyScan, data), nil
}
