package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	anomalies *prometheus.CounterVec
	warmed    *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddAnomalies counts detected sales anomalies by direction and store. A
// storeID of zero stands for the whole chain.
func (m *Metrics) AddAnomalies(direction string, storeID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.anomalies.WithLabelValues(direction, storeLabel(storeID)).Add(float64(count))
}

// AddWarmed counts dashboard scopes whose cache was populated.
func (m *Metrics) AddWarmed(scope string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.warmed.WithLabelValues(scope).Add(float64(count))
}

// AddScopeFailure counts a store a job skipped after a non-fatal error.
func (m *Metrics) AddScopeFailure(job string, storeID int64) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job, storeLabel(storeID)).Inc()
}

func storeLabel(id int64) string {
	if id <= 0 {
		return "all"
	}
	return strconv.FormatInt(id, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	const namespace = "restaurant_analytics"
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_failures_total",
		Help:      "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration in seconds of background job executions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sales_anomalies_total",
		Help:      "Detected daily sales anomalies grouped by direction and store.",
	}, []string{"direction", "store"})
	warmed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_warmed_scopes_total",
		Help:      "Dashboard scopes loaded by the cache warm-up job.",
	}, []string{"scope"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_scope_failures_total",
		Help:      "Per-store scopes a job skipped after an error.",
	}, []string{"job", "store"})
	registerer.MustRegister(runs, failures, duration, anomalies, warmed, skipped)
	return &Metrics{runs: runs, failures: failures, duration: duration, anomalies: anomalies, warmed: warmed, skipped: skipped}
}
