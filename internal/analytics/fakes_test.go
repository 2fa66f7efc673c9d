package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
)

// fakeRepo serves canned rows keyed by the requested date range so tests can
// model a current and a previous period independently.
type fakeRepo struct {
	mu sync.Mutex

	summaries    map[string]analyticsdb.SalesSummaryRow
	activeStores int64
	stores       []analyticsdb.StoreRow
	series       []analyticsdb.TimeSeriesRow
	hourly       []analyticsdb.HourlyRow
	weekday      []analyticsdb.WeekdayHourRow
	products     []analyticsdb.TopProductRow
	storePerf    []analyticsdb.StorePerformanceRow
	channelPerf  []analyticsdb.ChannelPerformanceRow
	payments     []analyticsdb.PaymentMixRow
	customs      []analyticsdb.CustomizationRow
	customized   []analyticsdb.CustomizedProductRow
	regions      []analyticsdb.DeliveryRegionRow

	errs  map[string]error
	calls map[string]int

	lastScope  analyticsdb.ScopeParams
	lastSeries analyticsdb.TimeSeriesParams
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		summaries: make(map[string]analyticsdb.SalesSummaryRow),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeRepo) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.errs[name]
}

func (f *fakeRepo) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRepo) setErr(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func rangeKey(from, to time.Time) string {
	return from.Format(dateLayout) + ".." + to.Format(dateLayout)
}

func (f *fakeRepo) SalesSummary(_ context.Context, arg analyticsdb.ScopeParams) (analyticsdb.SalesSummaryRow, error) {
	if err := f.record("SalesSummary"); err != nil {
		return analyticsdb.SalesSummaryRow{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScope = arg
	row, ok := f.summaries[rangeKey(arg.DateFrom.Time, arg.DateTo.Time)]
	if !ok {
		return analyticsdb.SalesSummaryRow{TotalAmount: decimal.Zero}, nil
	}
	return row, nil
}

func (f *fakeRepo) CountActiveStores(context.Context) (int64, error) {
	if err := f.record("CountActiveStores"); err != nil {
		return 0, err
	}
	return f.activeStores, nil
}

func (f *fakeRepo) ListActiveStores(context.Context) ([]analyticsdb.StoreRow, error) {
	if err := f.record("ListActiveStores"); err != nil {
		return nil, err
	}
	return f.stores, nil
}

func (f *fakeRepo) TimeSeries(_ context.Context, arg analyticsdb.TimeSeriesParams) ([]analyticsdb.TimeSeriesRow, error) {
	if err := f.record("TimeSeries"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastSeries = arg
	f.mu.Unlock()
	return f.series, nil
}

func (f *fakeRepo) HourlyDistribution(context.Context, analyticsdb.ScopeParams) ([]analyticsdb.HourlyRow, error) {
	if err := f.record("HourlyDistribution"); err != nil {
		return nil, err
	}
	return f.hourly, nil
}

func (f *fakeRepo) WeekdayHourly(context.Context, analyticsdb.ScopeParams) ([]analyticsdb.WeekdayHourRow, error) {
	if err := f.record("WeekdayHourly"); err != nil {
		return nil, err
	}
	return f.weekday, nil
}

func (f *fakeRepo) TopProducts(_ context.Context, arg analyticsdb.TopProductsParams) ([]analyticsdb.TopProductRow, error) {
	if err := f.record("TopProducts"); err != nil {
		return nil, err
	}
	return f.products, nil
}

func (f *fakeRepo) StorePerformance(context.Context, analyticsdb.ScopeParams) ([]analyticsdb.StorePerformanceRow, error) {
	if err := f.record("StorePerformance"); err != nil {
		return nil, err
	}
	return f.storePerf, nil
}

func (f *fakeRepo) ChannelPerformance(context.Context, analyticsdb.ScopeParams) ([]analyticsdb.ChannelPerformanceRow, error) {
	if err := f.record("ChannelPerformance"); err != nil {
		return nil, err
	}
	return f.channelPerf, nil
}

func (f *fakeRepo) PaymentMix(context.Context, analyticsdb.ScopeParams) ([]analyticsdb.PaymentMixRow, error) {
	if err := f.record("PaymentMix"); err != nil {
		return nil, err
	}
	return f.payments, nil
}

func (f *fakeRepo) PopularCustomizations(context.Context, analyticsdb.CustomizationsParams) ([]analyticsdb.CustomizationRow, error) {
	if err := f.record("PopularCustomizations"); err != nil {
		return nil, err
	}
	return f.customs, nil
}

func (f *fakeRepo) CustomizedProducts(context.Context, analyticsdb.ScopeParams) ([]analyticsdb.CustomizedProductRow, error) {
	if err := f.record("CustomizedProducts"); err != nil {
		return nil, err
	}
	return f.customized, nil
}

func (f *fakeRepo) DeliveryByRegion(context.Context, analyticsdb.ScopeParams) ([]analyticsdb.DeliveryRegionRow, error) {
	if err := f.record("DeliveryByRegion"); err != nil {
		return nil, err
	}
	return f.regions, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}
