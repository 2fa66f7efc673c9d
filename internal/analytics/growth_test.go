package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
)

func TestGrowthRate(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		previous float64
		want     float64
	}{
		{name: "growth", current: 120, previous: 100, want: 20},
		{name: "decline", current: 85, previous: 100, want: -15},
		{name: "rounded", current: 1, previous: 3, want: -66.7},
		{name: "no baseline", current: 50, previous: 0, want: 0},
		{name: "negative baseline", current: 50, previous: -10, want: 0},
		{name: "flat", current: 100, previous: 100, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GrowthRate(tc.current, tc.previous))
		})
	}
}

func TestCompareKPIsAgainstPreviousPeriod(t *testing.T) {
	repo := newFakeRepo()
	repo.summaries["2024-10-01..2024-10-10"] = analyticsdb.SalesSummaryRow{SalesCount: 100, TotalAmount: dec("12000")}
	repo.summaries["2024-09-21..2024-09-30"] = analyticsdb.SalesSummaryRow{SalesCount: 80, TotalAmount: dec("10000")}
	comparator := NewPeriodComparator(NewService(repo, nil))

	growth, err := comparator.CompareKPIs(context.Background(), octoberSpec())
	require.NoError(t, err)
	assert.Equal(t, 20.0, growth.RevenueGrowth)
	assert.Equal(t, 25.0, growth.SalesGrowth)
	assert.Equal(t, -4.0, growth.TicketGrowth)
}

func TestCompareKPIsWithoutPreviousSales(t *testing.T) {
	repo := newFakeRepo()
	repo.summaries["2024-10-01..2024-10-10"] = analyticsdb.SalesSummaryRow{SalesCount: 10, TotalAmount: dec("100")}
	comparator := NewPeriodComparator(NewService(repo, nil))

	growth, err := comparator.CompareKPIs(context.Background(), octoberSpec())
	require.NoError(t, err)
	assert.Equal(t, Growth{}, growth)
}

func TestCompareKPIsUnboundedFilter(t *testing.T) {
	repo := newFakeRepo()
	comparator := NewPeriodComparator(NewService(repo, nil))

	growth, err := comparator.CompareKPIs(context.Background(), MustFilterSpec(day("2024-10-01"), time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, Growth{}, growth)
	assert.Equal(t, 1, repo.callCount("SalesSummary"))
}

func TestCompareKPIsPropagatesErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.setErr("SalesSummary", context.DeadlineExceeded)
	comparator := NewPeriodComparator(NewService(repo, nil))

	_, err := comparator.CompareKPIs(context.Background(), octoberSpec())
	assert.ErrorIs(t, err, ErrQueryTimeout)
}
