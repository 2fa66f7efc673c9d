package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
)

// Repository exposes the read-only queries we rely on.
type Repository interface {
	SalesSummary(ctx context.Context, arg analyticsdb.ScopeParams) (analyticsdb.SalesSummaryRow, error)
	CountActiveStores(ctx context.Context) (int64, error)
	ListActiveStores(ctx context.Context) ([]analyticsdb.StoreRow, error)
	TimeSeries(ctx context.Context, arg analyticsdb.TimeSeriesParams) ([]analyticsdb.TimeSeriesRow, error)
	HourlyDistribution(ctx context.Context, arg analyticsdb.ScopeParams) ([]analyticsdb.HourlyRow, error)
	WeekdayHourly(ctx context.Context, arg analyticsdb.ScopeParams) ([]analyticsdb.WeekdayHourRow, error)
	TopProducts(ctx context.Context, arg analyticsdb.TopProductsParams) ([]analyticsdb.TopProductRow, error)
	StorePerformance(ctx context.Context, arg analyticsdb.ScopeParams) ([]analyticsdb.StorePerformanceRow, error)
	ChannelPerformance(ctx context.Context, arg analyticsdb.ScopeParams) ([]analyticsdb.ChannelPerformanceRow, error)
	PaymentMix(ctx context.Context, arg analyticsdb.ScopeParams) ([]analyticsdb.PaymentMixRow, error)
	PopularCustomizations(ctx context.Context, arg analyticsdb.CustomizationsParams) ([]analyticsdb.CustomizationRow, error)
	CustomizedProducts(ctx context.Context, arg analyticsdb.ScopeParams) ([]analyticsdb.CustomizedProductRow, error)
	DeliveryByRegion(ctx context.Context, arg analyticsdb.ScopeParams) ([]analyticsdb.DeliveryRegionRow, error)
}

// Minimum group sizes below which an aggregate is statistically meaningless.
const (
	MinCustomizedProductSales = 10
	MinRegionDeliveries       = 5
)

// Service is the aggregation store: it runs repository queries under a time
// budget, shapes the rows into result types and memoises them in the cache.
type Service struct {
	repo         Repository
	cache        *ResultCache
	logger       *slog.Logger
	queryTimeout time.Duration
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithQueryTimeout bounds each repository call.
func WithQueryTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.queryTimeout = d }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService wires a Repository with a ResultCache. A nil cache disables memoisation.
func NewService(repo Repository, cache *ResultCache, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, cache: cache, queryTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Cache exposes the result cache so callers can invalidate it.
func (s *Service) Cache() *ResultCache {
	return s.cache
}

// ActiveStores lists active stores. It is not cached; callers use it to fan
// out per-store work.
func (s *Service) ActiveStores(ctx context.Context) ([]analyticsdb.StoreRow, error) {
	var rows []analyticsdb.StoreRow
	err := s.query(ctx, "list active stores", func(ctx context.Context) error {
		var err error
		rows, err = s.repo.ListActiveStores(ctx)
		return err
	})
	return rows, err
}

// query runs fn under the per-query timeout and classifies its failure.
func (s *Service) query(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	return classifyStorageError("analytics: "+op, fn(ctx))
}

func scopeParams(spec FilterSpec) analyticsdb.ScopeParams {
	from, _ := spec.DateFrom()
	to, _ := spec.DateTo()
	return analyticsdb.ScopeParams{
		DateFrom:   dateParam(from),
		DateTo:     dateParam(to),
		StoreIDs:   spec.StoreIDs(),
		ChannelIDs: spec.ChannelIDs(),
	}
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func textValue(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
