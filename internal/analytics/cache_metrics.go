package analytics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics counts result cache outcomes per operation.
type CacheMetrics struct {
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewCacheMetrics registers the cache counters. Collectors already present on
// the registerer are reused so several caches can share one registry.
func NewCacheMetrics(reg prometheus.Registerer) (*CacheMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant_analytics",
			Name:      "cache_hits_total",
			Help:      "Number of aggregate results served from cache.",
		}, []string{"operation"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant_analytics",
			Name:      "cache_miss_total",
			Help:      "Number of aggregate results computed on a cache miss.",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant_analytics",
			Name:      "cache_failures_total",
			Help:      "Number of cache backend failures that fell back to the producer.",
		}, []string{"operation"}),
	}
	for _, vec := range []**prometheus.CounterVec{&m.hits, &m.misses, &m.failures} {
		if err := reg.Register(*vec); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, fmt.Errorf("analytics cache metrics: unexpected collector type %T", already.ExistingCollector)
			}
			*vec = existing
		}
	}
	return m, nil
}

func (m *CacheMetrics) hit(op Operation) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(string(op)).Inc()
}

func (m *CacheMetrics) miss(op Operation) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(string(op)).Inc()
}

func (m *CacheMetrics) failure(op Operation) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(op)).Inc()
}
