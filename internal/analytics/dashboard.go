package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DashboardStore is the aggregation surface the dashboard reads.
type DashboardStore interface {
	SummarySource
	SeriesSource
	PatternSource
	CountActiveStores(ctx context.Context) (int64, error)
	StorePerformance(ctx context.Context, spec FilterSpec) ([]StorePerformance, error)
	PaymentMix(ctx context.Context, spec FilterSpec) ([]PaymentMix, error)
	PopularCustomizations(ctx context.Context, spec FilterSpec, limit int) ([]Customization, error)
	MostCustomizedProducts(ctx context.Context, spec FilterSpec, limit int) ([]CustomizedProduct, error)
	DeliveryPerformanceByRegion(ctx context.Context, spec FilterSpec) ([]RegionDelivery, error)
}

// Invalidator drops cached results.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// DashboardSnapshot is the result of one load cycle.
type DashboardSnapshot struct {
	ID                 string               `json:"id"`
	Filter             string               `json:"filter"`
	GeneratedAt        time.Time            `json:"generated_at"`
	KPIs               KPIs                 `json:"kpis"`
	Growth             Growth               `json:"growth"`
	TimeSeries         []TimeSeriesPoint    `json:"time_series"`
	TopProducts        []ProductRank        `json:"top_products"`
	StorePerformance   []StorePerformance   `json:"store_performance"`
	ChannelPerformance []ChannelPerformance `json:"channel_performance"`
	HourlyDistribution []HourlyPoint        `json:"hourly_distribution"`
	Anomalies          []Anomaly            `json:"anomalies"`
	Alerts             []Alert              `json:"alerts"`
	Insights           []Insight            `json:"insights"`
	// Degraded lists widgets whose query failed and were returned empty.
	Degraded []string `json:"degraded,omitempty"`
}

// RestaurantInsights is the operational deep-dive view.
type RestaurantInsights struct {
	ID                     string              `json:"id"`
	Filter                 string              `json:"filter"`
	GeneratedAt            time.Time           `json:"generated_at"`
	PopularCustomizations  []Customization     `json:"popular_customizations"`
	MostCustomizedProducts []CustomizedProduct `json:"most_customized_products"`
	DeliveryRegions        []RegionDelivery    `json:"delivery_regions"`
	WeekdayPeaks           []WeekdayPeak       `json:"weekday_peaks"`
	PaymentMix             []PaymentMix        `json:"payment_mix"`
	Anomalies              []Anomaly           `json:"anomalies"`
	Degraded               []string            `json:"degraded,omitempty"`
}

// DashboardConfig tunes widget sizes.
type DashboardConfig struct {
	Bucket                  Bucket
	TopProductsLimit        int
	CustomizationsLimit     int
	CustomizedProductsLimit int
	Anomaly                 AnomalyOptions
	RetainedSnapshots       int
}

// DefaultDashboardConfig returns the stock widget configuration.
func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Bucket:                  BucketDay,
		TopProductsLimit:        10,
		CustomizationsLimit:     20,
		CustomizedProductsLimit: 15,
		Anomaly:                 AnomalyOptions{WindowDays: DefaultAnomalyWindowDays, ZThreshold: DefaultAnomalyZThreshold},
		RetainedSnapshots:       32,
	}
}

// Dashboard orchestrates one load cycle over the aggregation store.
type Dashboard struct {
	store      DashboardStore
	cache      Invalidator
	comparator *PeriodComparator
	detector   *AnomalyDetector
	patterns   *PatternAnalyzer
	engine     *InsightEngine
	cfg        DashboardConfig
	logger     *slog.Logger
	clock      func() time.Time

	mu    sync.Mutex
	last  map[string]DashboardSnapshot
	order []string
}

// DashboardOption customises a Dashboard.
type DashboardOption func(*Dashboard)

func WithDashboardConfig(cfg DashboardConfig) DashboardOption {
	return func(d *Dashboard) { d.cfg = cfg }
}

func WithInsightEngine(engine *InsightEngine) DashboardOption {
	return func(d *Dashboard) { d.engine = engine }
}

func WithDashboardLogger(logger *slog.Logger) DashboardOption {
	return func(d *Dashboard) { d.logger = logger }
}

func WithDashboardClock(fn func() time.Time) DashboardOption {
	return func(d *Dashboard) { d.clock = fn }
}

// NewDashboard wires the facade. cache may be nil when results are not memoised.
func NewDashboard(store DashboardStore, cache Invalidator, opts ...DashboardOption) *Dashboard {
	d := &Dashboard{
		store:      store,
		cache:      cache,
		comparator: NewPeriodComparator(store),
		patterns:   NewPatternAnalyzer(store),
		cfg:        DefaultDashboardConfig(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		last: make(map[string]DashboardSnapshot),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.engine == nil {
		d.engine = NewInsightEngine(DefaultThresholds())
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if !d.cfg.Bucket.Valid() {
		d.cfg.Bucket = BucketDay
	}
	d.detector = NewAnomalyDetector(store).WithClock(d.clock)
	return d
}

// Load computes a snapshot. Widgets whose query fails or times out come back
// empty and are listed in Degraded; an unreachable store fails the load.
func (d *Dashboard) Load(ctx context.Context, spec FilterSpec) (DashboardSnapshot, error) {
	return d.load(ctx, spec, false)
}

// Refresh invalidates the cache and reloads strictly: any widget failure is
// reported. On failure the last good snapshot for spec, if any, is returned
// alongside the error.
func (d *Dashboard) Refresh(ctx context.Context, spec FilterSpec) (DashboardSnapshot, error) {
	if d.cache != nil {
		if err := d.cache.InvalidateAll(ctx); err != nil {
			prev, _ := d.LastSnapshot(spec)
			return prev, err
		}
	}
	snap, err := d.load(ctx, spec, true)
	if err != nil {
		prev, _ := d.LastSnapshot(spec)
		return prev, err
	}
	return snap, nil
}

// LastSnapshot returns the most recent snapshot for spec that loaded with no
// degraded widgets.
func (d *Dashboard) LastSnapshot(spec FilterSpec) (DashboardSnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.last[spec.CacheToken()]
	return snap, ok
}

// TimeSeries serves a single series outside a full load.
func (d *Dashboard) TimeSeries(ctx context.Context, spec FilterSpec, bucket Bucket) ([]TimeSeriesPoint, error) {
	return d.store.TimeSeries(ctx, spec, bucket)
}

func (d *Dashboard) load(ctx context.Context, spec FilterSpec, strict bool) (DashboardSnapshot, error) {
	snap := DashboardSnapshot{
		ID:                 uuid.NewString(),
		Filter:             spec.CacheToken(),
		GeneratedAt:        d.clock(),
		TimeSeries:         []TimeSeriesPoint{},
		TopProducts:        []ProductRank{},
		StorePerformance:   []StorePerformance{},
		ChannelPerformance: []ChannelPerformance{},
		HourlyDistribution: emptyHours(),
		Anomalies:          []Anomaly{},
	}

	fan := newFanOut(ctx, d.logger, strict)
	fan.run("kpis", func(ctx context.Context) error {
		summary, err := d.store.CountAndSum(ctx, spec)
		if err != nil {
			return err
		}
		snap.KPIs.SalesSummary = summary
		return nil
	})
	fan.run("active_stores", func(ctx context.Context) error {
		count, err := d.store.CountActiveStores(ctx)
		if err != nil {
			return err
		}
		snap.KPIs.ActiveStores = count
		return nil
	})
	fan.run("growth", func(ctx context.Context) error {
		growth, err := d.comparator.CompareKPIs(ctx, spec)
		if err != nil {
			return err
		}
		snap.Growth = growth
		return nil
	})
	fan.run("time_series", func(ctx context.Context) error {
		points, err := d.store.TimeSeries(ctx, spec, d.cfg.Bucket)
		if err != nil {
			return err
		}
		snap.TimeSeries = points
		return nil
	})
	fan.run("top_products", func(ctx context.Context) error {
		products, err := d.store.TopProducts(ctx, spec, d.cfg.TopProductsLimit)
		if err != nil {
			return err
		}
		snap.TopProducts = products
		return nil
	})
	fan.run("store_performance", func(ctx context.Context) error {
		stores, err := d.store.StorePerformance(ctx, spec)
		if err != nil {
			return err
		}
		snap.StorePerformance = stores
		return nil
	})
	fan.run("channel_performance", func(ctx context.Context) error {
		channels, err := d.store.ChannelPerformance(ctx, spec)
		if err != nil {
			return err
		}
		snap.ChannelPerformance = channels
		return nil
	})
	fan.run("hourly_distribution", func(ctx context.Context) error {
		hours, err := d.store.HourlyDistribution(ctx, spec)
		if err != nil {
			return err
		}
		snap.HourlyDistribution = hours
		return nil
	})
	fan.run("anomalies", func(ctx context.Context) error {
		anomalies, err := d.detector.Detect(ctx, spec, d.cfg.Anomaly)
		if err != nil {
			return err
		}
		snap.Anomalies = anomalies
		return nil
	})
	degraded, err := fan.wait()
	if err != nil {
		return DashboardSnapshot{}, err
	}
	snap.Degraded = degraded

	snap.Alerts, snap.Insights = d.engine.Evaluate(InsightInput{
		KPIs:        snap.KPIs,
		Growth:      snap.Growth,
		Hourly:      snap.HourlyDistribution,
		Channels:    snap.ChannelPerformance,
		TopProducts: snap.TopProducts,
		Anomalies:   snap.Anomalies,
	})

	if len(degraded) == 0 {
		d.remember(snap)
	}
	return snap, nil
}

// LoadRestaurantInsights computes the operational deep-dive with the same
// degradation policy as Load.
func (d *Dashboard) LoadRestaurantInsights(ctx context.Context, spec FilterSpec) (RestaurantInsights, error) {
	out := RestaurantInsights{
		ID:                     uuid.NewString(),
		Filter:                 spec.CacheToken(),
		GeneratedAt:            d.clock(),
		PopularCustomizations:  []Customization{},
		MostCustomizedProducts: []CustomizedProduct{},
		DeliveryRegions:        []RegionDelivery{},
		WeekdayPeaks:           WeekdayPeaks(nil),
		PaymentMix:             []PaymentMix{},
		Anomalies:              []Anomaly{},
	}

	fan := newFanOut(ctx, d.logger, false)
	fan.run("popular_customizations", func(ctx context.Context) error {
		items, err := d.store.PopularCustomizations(ctx, spec, d.cfg.CustomizationsLimit)
		if err != nil {
			return err
		}
		out.PopularCustomizations = items
		return nil
	})
	fan.run("most_customized_products", func(ctx context.Context) error {
		products, err := d.store.MostCustomizedProducts(ctx, spec, d.cfg.CustomizedProductsLimit)
		if err != nil {
			return err
		}
		out.MostCustomizedProducts = products
		return nil
	})
	fan.run("delivery_regions", func(ctx context.Context) error {
		regions, err := d.store.DeliveryPerformanceByRegion(ctx, spec)
		if err != nil {
			return err
		}
		out.DeliveryRegions = regions
		return nil
	})
	fan.run("weekday_peaks", func(ctx context.Context) error {
		peaks, err := d.patterns.PeakHoursByWeekday(ctx, spec)
		if err != nil {
			return err
		}
		out.WeekdayPeaks = peaks
		return nil
	})
	fan.run("payment_mix", func(ctx context.Context) error {
		mix, err := d.store.PaymentMix(ctx, spec)
		if err != nil {
			return err
		}
		out.PaymentMix = mix
		return nil
	})
	fan.run("anomalies", func(ctx context.Context) error {
		anomalies, err := d.detector.Detect(ctx, spec, d.cfg.Anomaly)
		if err != nil {
			return err
		}
		out.Anomalies = anomalies
		return nil
	})
	degraded, err := fan.wait()
	if err != nil {
		return RestaurantInsights{}, err
	}
	out.Degraded = degraded
	return out, nil
}

func (d *Dashboard) remember(snap DashboardSnapshot) {
	limit := d.cfg.RetainedSnapshots
	if limit <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.last[snap.Filter]; !ok {
		d.order = append(d.order, snap.Filter)
	}
	d.last[snap.Filter] = snap
	for len(d.order) > limit {
		delete(d.last, d.order[0])
		d.order = d.order[1:]
	}
}

// fanOut runs widget loaders concurrently. In lenient mode a failing widget
// is recorded as degraded unless the store is unreachable or the caller gave
// up; in strict mode the first failure cancels the rest.
type fanOut struct {
	parent   context.Context
	group    *errgroup.Group
	ctx      context.Context
	logger   *slog.Logger
	strict   bool
	mu       sync.Mutex
	degraded []string
}

func newFanOut(ctx context.Context, logger *slog.Logger, strict bool) *fanOut {
	g, gctx := errgroup.WithContext(ctx)
	return &fanOut{parent: ctx, group: g, ctx: gctx, logger: logger, strict: strict}
}

func (f *fanOut) run(widget string, fn func(context.Context) error) {
	f.group.Go(func() error {
		err := fn(f.ctx)
		if err == nil {
			return nil
		}
		if f.strict || f.parent.Err() != nil || errors.Is(err, ErrStorageUnavailable) {
			f.logger.Error("dashboard widget failed", slog.String("widget", widget), slog.Any("error", err))
			return err
		}
		f.logger.Warn("dashboard widget degraded", slog.String("widget", widget), slog.Any("error", err))
		f.mu.Lock()
		f.degraded = append(f.degraded, widget)
		f.mu.Unlock()
		return nil
	})
}

func (f *fanOut) wait() ([]string, error) {
	if err := f.group.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(f.degraded)
	return f.degraded, nil
}
