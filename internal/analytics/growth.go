package analytics

import (
	"context"
	"math"
)

// SummarySource supplies scope summaries to the period comparator.
type SummarySource interface {
	CountAndSum(ctx context.Context, spec FilterSpec) (SalesSummary, error)
}

// PeriodComparator measures a scope against its preceding period.
type PeriodComparator struct {
	source SummarySource
}

// NewPeriodComparator binds the comparator to a summary source.
func NewPeriodComparator(source SummarySource) *PeriodComparator {
	return &PeriodComparator{source: source}
}

// GrowthRate returns (current-previous)/previous*100 rounded to one decimal.
// There is no baseline when previous is zero or negative, so the rate is 0.
func GrowthRate(current, previous float64) float64 {
	if previous <= 0 || math.IsNaN(previous) || math.IsNaN(current) {
		return 0
	}
	return round1((current - previous) / previous * 100)
}

// CompareKPIs computes revenue, sales and ticket growth of spec against its
// previous period. Filters without both date bounds have no previous period
// and report zero growth.
func (c *PeriodComparator) CompareKPIs(ctx context.Context, spec FilterSpec) (Growth, error) {
	current, err := c.source.CountAndSum(ctx, spec)
	if err != nil {
		return Growth{}, err
	}
	return c.CompareWith(ctx, spec, current)
}

// CompareWith is CompareKPIs for callers that already hold the current summary.
func (c *PeriodComparator) CompareWith(ctx context.Context, spec FilterSpec, current SalesSummary) (Growth, error) {
	prevSpec, ok := spec.PreviousPeriod()
	if !ok {
		return Growth{}, nil
	}
	previous, err := c.source.CountAndSum(ctx, prevSpec)
	if err != nil {
		return Growth{}, err
	}
	return Growth{
		RevenueGrowth: GrowthRate(current.TotalAmount.InexactFloat64(), previous.TotalAmount.InexactFloat64()),
		SalesGrowth:   GrowthRate(float64(current.Count), float64(previous.Count)),
		TicketGrowth:  GrowthRate(current.AvgAmount.InexactFloat64(), previous.AvgAmount.InexactFloat64()),
	}, nil
}
