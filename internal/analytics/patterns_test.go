package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
)

func TestPeakOfEarliestHourWinsTies(t *testing.T) {
	hours := emptyHours()
	hours[12].Count = 40
	hours[19].Count = 40
	hours[8].Count = 5

	peak, ok := PeakOf(hours)
	require.True(t, ok)
	assert.Equal(t, PeakHour{Hour: 12, Count: 40}, peak)
}

func TestPeakOfNoSales(t *testing.T) {
	_, ok := PeakOf(emptyHours())
	assert.False(t, ok)
}

func TestWeekdayPeaksCoversEveryDay(t *testing.T) {
	peaks := WeekdayPeaks([]WeekdayHourCell{
		{Weekday: 5, Hour: 20, Count: 33, Revenue: dec("990")},
		{Weekday: 5, Hour: 12, Count: 18, Revenue: dec("540")},
		{Weekday: 0, Hour: 13, Count: 25, Revenue: dec("700")},
	})
	require.Len(t, peaks, 7)

	assert.Equal(t, "Sunday", peaks[0].WeekdayName)
	assert.Equal(t, 13, peaks[0].PeakHour)
	assert.Equal(t, "Friday", peaks[5].WeekdayName)
	assert.Equal(t, 20, peaks[5].PeakHour)
	assert.Equal(t, int64(33), peaks[5].PeakCount)
	assert.True(t, dec("990").Equal(peaks[5].PeakRevenue))
	assert.True(t, dec("700").Equal(peaks[0].PeakRevenue))
	assert.Len(t, peaks[5].HourlyBreakdown, 24)
	assert.Equal(t, int64(18), peaks[5].HourlyBreakdown[12].Count)

	assert.Equal(t, 0, peaks[2].PeakHour)
	assert.Equal(t, int64(0), peaks[2].PeakCount)
	assert.True(t, peaks[2].PeakRevenue.IsZero())
	assert.Len(t, peaks[2].HourlyBreakdown, 24)
}

func TestPatternAnalyzerLeaders(t *testing.T) {
	repo := newFakeRepo()
	repo.hourly = []analyticsdb.HourlyRow{{Hour: 19, SalesCount: 12, Revenue: dec("300")}}
	repo.products = []analyticsdb.TopProductRow{
		{ProductID: 2, Name: "Burger", Quantity: 10},
		{ProductID: 1, Name: "Pizza", Quantity: 30},
	}
	repo.channelPerf = []analyticsdb.ChannelPerformanceRow{
		{ChannelID: 1, Name: "Counter", SalesCount: 5, Revenue: dec("100")},
		{ChannelID: 2, Name: "App", SalesCount: 5, Revenue: dec("900")},
	}
	analyzer := NewPatternAnalyzer(NewService(repo, nil))
	ctx := context.Background()

	peak, ok, err := analyzer.PeakHour(ctx, octoberSpec())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 19, peak.Hour)

	channel, ok, err := analyzer.TopChannel(ctx, octoberSpec())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "App", channel.ChannelName)

	product, ok, err := analyzer.TopProduct(ctx, octoberSpec())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Pizza", product.Name)
}

func TestPatternAnalyzerEmptyScope(t *testing.T) {
	analyzer := NewPatternAnalyzer(NewService(newFakeRepo(), nil))
	ctx := context.Background()

	_, ok, err := analyzer.PeakHour(ctx, octoberSpec())
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = analyzer.TopChannel(ctx, octoberSpec())
	require.NoError(t, err)
	assert.False(t, ok)

	peaks, err := analyzer.PeakHoursByWeekday(ctx, octoberSpec())
	require.NoError(t, err)
	assert.Len(t, peaks, 7)
}
