package analytichttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
	"github.com/odyssey-erp/restaurant-analytics/internal/platform/httpx"
)

type stubService struct {
	snap       analytics.DashboardSnapshot
	view       analytics.RestaurantInsights
	points     []analytics.TimeSeriesPoint
	err        error
	refreshErr error

	lastSpec   analytics.FilterSpec
	lastBucket analytics.Bucket
	refreshes  int
}

func (s *stubService) Load(_ context.Context, spec analytics.FilterSpec) (analytics.DashboardSnapshot, error) {
	s.lastSpec = spec
	if s.err != nil {
		return analytics.DashboardSnapshot{}, s.err
	}
	return s.snap, nil
}

func (s *stubService) Refresh(_ context.Context, spec analytics.FilterSpec) (analytics.DashboardSnapshot, error) {
	s.lastSpec = spec
	s.refreshes++
	return s.snap, s.refreshErr
}

func (s *stubService) LoadRestaurantInsights(_ context.Context, spec analytics.FilterSpec) (analytics.RestaurantInsights, error) {
	s.lastSpec = spec
	return s.view, s.err
}

func (s *stubService) TimeSeries(_ context.Context, spec analytics.FilterSpec, bucket analytics.Bucket) ([]analytics.TimeSeriesPoint, error) {
	s.lastSpec = spec
	s.lastBucket = bucket
	return s.points, s.err
}

func newTestRouter(svc *stubService) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	h.WithNow(func() time.Time { return time.Date(2024, 10, 30, 13, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func serve(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDashboardDefaultsToTrailingThirtyDays(t *testing.T) {
	svc := &stubService{snap: analytics.DashboardSnapshot{ID: "snap-1"}}
	rec := serve(t, newTestRouter(svc), http.MethodGet, "/analytics/dashboard")

	require.Equal(t, http.StatusOK, rec.Code)
	from, _ := svc.lastSpec.DateFrom()
	to, _ := svc.lastSpec.DateTo()
	assert.Equal(t, "2024-10-01", from.Format(dateLayout))
	assert.Equal(t, "2024-10-30", to.Format(dateLayout))

	var body analytics.DashboardSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "snap-1", body.ID)
}

func TestDashboardParsesFilter(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, newTestRouter(svc), http.MethodGet,
		"/analytics/dashboard?date_from=2024-10-01&date_to=2024-10-10&store_id=3&store_id=1&channel_id=2,5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 3}, svc.lastSpec.StoreIDs())
	assert.Equal(t, []int64{2, 5}, svc.lastSpec.ChannelIDs())
	assert.Equal(t, 10, svc.lastSpec.Days())
}

func TestDashboardRejectsInvalidFilters(t *testing.T) {
	targets := []string{
		"/analytics/dashboard?date_from=01-10-2024",
		"/analytics/dashboard?store_id=abc",
		"/analytics/dashboard?store_id=0",
		"/analytics/dashboard?date_from=2024-10-10&date_to=2024-10-01",
		"/analytics/time-series?bucket=quarter",
	}
	for _, target := range targets {
		rec := serve(t, newTestRouter(&stubService{}), http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)

		var problem httpx.ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem), target)
		assert.Equal(t, http.StatusBadRequest, problem.Status)
	}
}

func TestDashboardMapsStorageErrors(t *testing.T) {
	cases := map[error]int{
		analytics.ErrStorageUnavailable: http.StatusServiceUnavailable,
		analytics.ErrQueryTimeout:       http.StatusGatewayTimeout,
		errors.New("boom"):              http.StatusInternalServerError,
	}
	for err, status := range cases {
		svc := &stubService{err: err}
		rec := serve(t, newTestRouter(svc), http.MethodGet, "/analytics/dashboard")
		assert.Equal(t, status, rec.Code, err.Error())
	}
}

func TestRefreshServesLastSnapshotOnFailure(t *testing.T) {
	svc := &stubService{snap: analytics.DashboardSnapshot{ID: "previous"}, refreshErr: analytics.ErrQueryTimeout}
	rec := serve(t, newTestRouter(svc), http.MethodPost, "/analytics/dashboard/refresh")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Warning"))
	assert.Contains(t, rec.Body.String(), "previous")
}

func TestRefreshWithoutSnapshotFails(t *testing.T) {
	svc := &stubService{refreshErr: analytics.ErrStorageUnavailable}
	rec := serve(t, newTestRouter(svc), http.MethodPost, "/analytics/dashboard/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshIsRateLimited(t *testing.T) {
	svc := &stubService{snap: analytics.DashboardSnapshot{ID: "s"}}
	router := newTestRouter(svc)

	var last *httptest.ResponseRecorder
	for i := 0; i <= RefreshLimit; i++ {
		last = serve(t, router, http.MethodPost, "/analytics/dashboard/refresh")
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, RefreshLimit, svc.refreshes)
}

func TestTimeSeriesEndpoint(t *testing.T) {
	svc := &stubService{points: []analytics.TimeSeriesPoint{{Count: 4}}}
	rec := serve(t, newTestRouter(svc), http.MethodGet, "/analytics/time-series?bucket=WEEK&date_from=2024-09-01&date_to=2024-09-30")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.BucketWeek, svc.lastBucket)
	assert.Contains(t, rec.Body.String(), `"bucket":"week"`)
}

func TestRestaurantEndpoint(t *testing.T) {
	svc := &stubService{view: analytics.RestaurantInsights{ID: "view-1", Degraded: []string{"payment_mix"}}}
	rec := serve(t, newTestRouter(svc), http.MethodGet, "/analytics/restaurant?date_from=2024-10-01&date_to=2024-10-10")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment_mix")
}

func TestCSVExport(t *testing.T) {
	svc := &stubService{snap: analytics.DashboardSnapshot{ID: "s", Filter: "from=2024-10-01"}}
	rec := serve(t, newTestRouter(svc), http.MethodGet, "/analytics/dashboard/export.csv?date_from=2024-10-01&date_to=2024-10-10")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "restaurant-analytics-2024-10-01-2024-10-10.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Metric,Value,Growth %"))
}
