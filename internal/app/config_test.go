package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, CacheBackendRedis, cfg.CacheBackend)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 30, cfg.AnomalyWindowDays)
	assert.Equal(t, "*/10 * * * *", cfg.WarmupCron)

	ttl := cfg.TTLPolicy()
	assert.Equal(t, 15*time.Minute, ttl.TTL(analytics.OpSalesSummary))
	assert.Equal(t, 30*time.Minute, ttl.TTL(analytics.OpTopProducts))
	assert.Equal(t, 5*time.Minute, ttl.TTL(analytics.OpChannelPerformance))
	assert.Equal(t, 10*time.Minute, ttl.TTL(analytics.OpDeliveryRegions))
	assert.Equal(t, time.Hour, ttl.TTL(analytics.OpActiveStores))
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("ANALYTICS_TOP_PRODUCTS_LIMIT", "5")
	t.Setenv("ANALYTICS_ANOMALY_Z", "3")
	t.Setenv("INSIGHT_DISABLED_RULES", "revenue_drop,ticket_down")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"revenue_drop", "ticket_down"}, cfg.DisabledRules)

	dash := cfg.DashboardConfig()
	assert.Equal(t, 5, dash.TopProductsLimit)
	assert.Equal(t, 3.0, dash.Anomaly.ZThreshold)
	assert.Equal(t, 20, dash.CustomizationsLimit)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Config{
		CacheBackend:      "memcached",
		PGDSN:             " ",
		QueryTimeout:      time.Second,
		AppRequestTimeout: time.Second,
		AnomalyWindowDays: 3,
		AnomalyZThreshold: 0,
		TopProductsLimit:  10,
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "CACHE_BACKEND")
	assert.Contains(t, msg, "PG_DSN")
	assert.Contains(t, msg, "ANALYTICS_ANOMALY_WINDOW_DAYS")
	assert.Contains(t, msg, "ANALYTICS_ANOMALY_Z")
}

func TestInTestModeFollowsEnv(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestLoggerFormatAndLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"msg":"shown"`)
}
