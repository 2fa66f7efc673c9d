package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
)

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, NewResultCache(NewMemoryBackend(), DefaultTTLPolicy()))
}

func octoberSpec(opts ...FilterOption) FilterSpec {
	return MustFilterSpec(day("2024-10-01"), day("2024-10-10"), opts...)
}

func TestCountAndSumEmptyScope(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	summary, err := svc.CountAndSum(context.Background(), octoberSpec())
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Count)
	assert.True(t, summary.TotalAmount.IsZero())
	assert.True(t, summary.AvgAmount.IsZero())
}

func TestCountAndSumAveragesTicket(t *testing.T) {
	repo := newFakeRepo()
	repo.summaries["2024-10-01..2024-10-10"] = analyticsdb.SalesSummaryRow{SalesCount: 3, TotalAmount: dec("425.50")}
	svc := newTestService(repo)

	summary, err := svc.CountAndSum(context.Background(), octoberSpec(WithStores(1)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Count)
	assert.True(t, summary.TotalAmount.Equal(dec("425.50")), summary.TotalAmount.String())
	assert.True(t, summary.AvgAmount.Equal(dec("141.83")), summary.AvgAmount.String())
	assert.Equal(t, []int64{1}, repo.lastScope.StoreIDs)
	assert.Empty(t, repo.lastScope.ChannelIDs)
}

func TestCountAndSumIsCachedPerFilter(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CountAndSum(ctx, octoberSpec())
	require.NoError(t, err)
	_, err = svc.CountAndSum(ctx, octoberSpec())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.callCount("SalesSummary"))

	_, err = svc.CountAndSum(ctx, octoberSpec(WithStores(2)))
	require.NoError(t, err)
	assert.Equal(t, 2, repo.callCount("SalesSummary"))

	require.NoError(t, svc.Cache().InvalidateAll(ctx))
	_, err = svc.CountAndSum(ctx, octoberSpec())
	require.NoError(t, err)
	assert.Equal(t, 3, repo.callCount("SalesSummary"))
}

func TestCountAndSumUnboundedScopeSendsNullDates(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	_, err := svc.CountAndSum(context.Background(), MustFilterSpec(time.Time{}, time.Time{}))
	require.NoError(t, err)
	assert.False(t, repo.lastScope.DateFrom.Valid)
	assert.False(t, repo.lastScope.DateTo.Valid)
}

func TestStorageErrorsAreClassified(t *testing.T) {
	repo := newFakeRepo()
	repo.setErr("SalesSummary", &pgconn.ConnectError{Config: &pgconn.Config{}})
	svc := NewService(repo, nil)

	_, err := svc.CountAndSum(context.Background(), octoberSpec())
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	repo.setErr("PaymentMix", context.DeadlineExceeded)
	_, err = svc.PaymentMix(context.Background(), octoberSpec())
	assert.ErrorIs(t, err, ErrQueryTimeout)

	plain := errors.New("syntax error")
	repo.setErr("HourlyDistribution", plain)
	_, err = svc.HourlyDistribution(context.Background(), octoberSpec())
	assert.ErrorIs(t, err, plain)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)
}

func TestTimeSeriesRejectsUnknownBucket(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	_, err := svc.TimeSeries(context.Background(), octoberSpec(), Bucket("quarter"))
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.Equal(t, 0, repo.callCount("TimeSeries"))
}

func TestTimeSeriesSortsAscending(t *testing.T) {
	repo := newFakeRepo()
	repo.series = []analyticsdb.TimeSeriesRow{
		{PeriodStart: day("2024-10-03"), SalesCount: 2, Revenue: dec("50")},
		{PeriodStart: day("2024-10-01"), SalesCount: 4, Revenue: dec("100")},
	}
	svc := NewService(repo, nil)

	points, err := svc.TimeSeries(context.Background(), octoberSpec(), BucketDay)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, day("2024-10-01"), points[0].PeriodStart)
	assert.True(t, points[0].AvgTicket.Equal(dec("25")))
	assert.Equal(t, "day", repo.lastSeries.Bucket)
}

func TestHourlyDistributionFillsAllHours(t *testing.T) {
	repo := newFakeRepo()
	repo.hourly = []analyticsdb.HourlyRow{
		{Hour: 12, SalesCount: 30, Revenue: dec("900")},
		{Hour: 19, SalesCount: 45, Revenue: dec("1500.50")},
	}
	svc := NewService(repo, nil)

	hours, err := svc.HourlyDistribution(context.Background(), octoberSpec())
	require.NoError(t, err)
	require.Len(t, hours, 24)
	for h, point := range hours {
		assert.Equal(t, h, point.Hour)
	}
	assert.Equal(t, int64(30), hours[12].Count)
	assert.Equal(t, int64(45), hours[19].Count)
	assert.Equal(t, int64(0), hours[3].Count)
	assert.True(t, hours[3].Revenue.IsZero())
}

func TestTopProductsOrdering(t *testing.T) {
	repo := newFakeRepo()
	repo.products = []analyticsdb.TopProductRow{
		{ProductID: 9, Name: "Fries", Quantity: 40, Revenue: dec("400")},
		{ProductID: 3, Name: "Burger", Quantity: 55, Revenue: dec("1100")},
		{ProductID: 5, Name: "Soda", Quantity: 40, Revenue: dec("200")},
	}
	svc := NewService(repo, nil)

	ranks, err := svc.TopProducts(context.Background(), octoberSpec(), 2)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	assert.Equal(t, int64(3), ranks[0].ProductID)
	assert.Equal(t, int64(5), ranks[1].ProductID)
}

func TestTopProductsNonPositiveLimit(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	ranks, err := svc.TopProducts(context.Background(), octoberSpec(), 0)
	require.NoError(t, err)
	assert.Empty(t, ranks)
	assert.Equal(t, 0, repo.callCount("TopProducts"))
}

func TestChannelPerformanceOrderedByRevenue(t *testing.T) {
	repo := newFakeRepo()
	repo.channelPerf = []analyticsdb.ChannelPerformanceRow{
		{ChannelID: 1, Name: "Counter", Type: pgtype.Text{String: "P", Valid: true}, SalesCount: 10, Revenue: dec("500")},
		{ChannelID: 2, Name: "iFood", Type: pgtype.Text{String: "D", Valid: true}, SalesCount: 20, Revenue: dec("1200"),
			AvgDeliverySeconds: pgtype.Float8{Float64: 1830, Valid: true}},
	}
	svc := NewService(repo, nil)

	channels, err := svc.ChannelPerformance(context.Background(), octoberSpec())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "iFood", channels[0].ChannelName)
	assert.Equal(t, ChannelDelivery, channels[0].ChannelType)
	assert.Equal(t, 30.5, channels[0].AvgDeliveryMinutes)
	assert.True(t, channels[0].AvgTicket.Equal(dec("60")))
	assert.Equal(t, ChannelPresential, channels[1].ChannelType)
}

func TestStorePerformanceTiesBreakOnID(t *testing.T) {
	repo := newFakeRepo()
	repo.storePerf = []analyticsdb.StorePerformanceRow{
		{StoreID: 7, Name: "Centro", SalesCount: 5, Revenue: dec("300")},
		{StoreID: 2, Name: "Norte", SalesCount: 6, Revenue: dec("300"), City: pgtype.Text{String: "Recife", Valid: true}},
	}
	svc := NewService(repo, nil)

	stores, err := svc.StorePerformance(context.Background(), octoberSpec())
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, int64(2), stores[0].StoreID)
	assert.Equal(t, "Recife", stores[0].City)
	assert.Equal(t, "", stores[1].City)
}

func TestPaymentMixShares(t *testing.T) {
	repo := newFakeRepo()
	repo.payments = []analyticsdb.PaymentMixRow{
		{PaymentTypeID: 1, Description: "Cash", TransactionCount: 10, TotalValue: dec("250"), AvgValue: dec("25")},
		{PaymentTypeID: 2, Description: "Credit", TransactionCount: 20, TotalValue: dec("750"), AvgValue: dec("37.5")},
	}
	svc := NewService(repo, nil)

	mix, err := svc.PaymentMix(context.Background(), octoberSpec())
	require.NoError(t, err)
	require.Len(t, mix, 2)
	assert.Equal(t, "Credit", mix[0].PaymentType)
	assert.Equal(t, 75.0, mix[0].PercentageOfTotal)
	assert.Equal(t, 25.0, mix[1].PercentageOfTotal)
}

func TestMostCustomizedProductsDropsSmallSamples(t *testing.T) {
	repo := newFakeRepo()
	repo.customized = []analyticsdb.CustomizedProductRow{
		{ProductID: 1, Name: "Pizza", TotalSold: 9, TotalCustomizations: 9},
		{ProductID: 2, Name: "Burger", TotalSold: 10, TotalCustomizations: 4},
		{ProductID: 3, Name: "Salad", TotalSold: 40, TotalCustomizations: 30},
	}
	svc := NewService(repo, nil)

	products, err := svc.MostCustomizedProducts(context.Background(), octoberSpec(), 15)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(3), products[0].ProductID)
	assert.Equal(t, 75.0, products[0].CustomizationRate)
	assert.Equal(t, 40.0, products[1].CustomizationRate)
}

func TestDeliveryByRegionDropsSmallRegions(t *testing.T) {
	repo := newFakeRepo()
	repo.regions = []analyticsdb.DeliveryRegionRow{
		{Neighborhood: pgtype.Text{String: "Boa Viagem", Valid: true}, City: pgtype.Text{String: "Recife", Valid: true},
			TotalDeliveries: 12, AvgDeliveryMinutes: 31.26, AvgOrderValue: dec("58.456"), P90DeliveryMinutes: 44.91},
		{Neighborhood: pgtype.Text{String: "Pina", Valid: true}, City: pgtype.Text{String: "Recife", Valid: true},
			TotalDeliveries: 4, AvgDeliveryMinutes: 20},
	}
	svc := NewService(repo, nil)

	regions, err := svc.DeliveryPerformanceByRegion(context.Background(), octoberSpec())
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Boa Viagem", regions[0].Neighborhood)
	assert.Equal(t, 31.3, regions[0].AvgDeliveryMinutes)
	assert.Equal(t, 44.9, regions[0].P90DeliveryMinutes)
	assert.True(t, regions[0].AvgOrderValue.Equal(dec("58.46")))
}

func TestPopularCustomizationsRanked(t *testing.T) {
	repo := newFakeRepo()
	repo.customs = []analyticsdb.CustomizationRow{
		{ItemID: 4, Name: "Bacon", TimesAdded: 12, TotalRevenue: dec("60")},
		{ItemID: 2, Name: "Cheese", TimesAdded: 30, TotalRevenue: dec("90")},
	}
	svc := NewService(repo, nil)

	items, err := svc.PopularCustomizations(context.Background(), octoberSpec(), 20)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Cheese", items[0].ItemName)
}

func TestCountActiveStoresIgnoresFilter(t *testing.T) {
	repo := newFakeRepo()
	repo.activeStores = 4
	svc := newTestService(repo)

	n, err := svc.CountActiveStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	_, err = svc.CountActiveStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.callCount("CountActiveStores"))
}
