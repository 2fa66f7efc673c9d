package analytics

import (
	"context"
	"time"
)

// PatternSource supplies the aggregates the pattern analyzer reads.
type PatternSource interface {
	HourlyDistribution(ctx context.Context, spec FilterSpec) ([]HourlyPoint, error)
	WeekdayHourly(ctx context.Context, spec FilterSpec) ([]WeekdayHourCell, error)
	ChannelPerformance(ctx context.Context, spec FilterSpec) ([]ChannelPerformance, error)
	TopProducts(ctx context.Context, spec FilterSpec, limit int) ([]ProductRank, error)
}

// PatternAnalyzer extracts peaks and leaders from aggregate results.
type PatternAnalyzer struct {
	source PatternSource
}

func NewPatternAnalyzer(source PatternSource) *PatternAnalyzer {
	return &PatternAnalyzer{source: source}
}

// PeakHour returns the busiest hour of the scope; false when there were no sales.
func (a *PatternAnalyzer) PeakHour(ctx context.Context, spec FilterSpec) (PeakHour, bool, error) {
	hours, err := a.source.HourlyDistribution(ctx, spec)
	if err != nil {
		return PeakHour{}, false, err
	}
	peak, ok := PeakOf(hours)
	return peak, ok, nil
}

// PeakHoursByWeekday returns seven entries, Sunday first.
func (a *PatternAnalyzer) PeakHoursByWeekday(ctx context.Context, spec FilterSpec) ([]WeekdayPeak, error) {
	cells, err := a.source.WeekdayHourly(ctx, spec)
	if err != nil {
		return nil, err
	}
	return WeekdayPeaks(cells), nil
}

// TopChannel returns the highest revenue channel.
func (a *PatternAnalyzer) TopChannel(ctx context.Context, spec FilterSpec) (ChannelPerformance, bool, error) {
	channels, err := a.source.ChannelPerformance(ctx, spec)
	if err != nil {
		return ChannelPerformance{}, false, err
	}
	if len(channels) == 0 {
		return ChannelPerformance{}, false, nil
	}
	return channels[0], true, nil
}

// TopProduct returns the product with the most units sold.
func (a *PatternAnalyzer) TopProduct(ctx context.Context, spec FilterSpec) (ProductRank, bool, error) {
	products, err := a.source.TopProducts(ctx, spec, 1)
	if err != nil {
		return ProductRank{}, false, err
	}
	if len(products) == 0 {
		return ProductRank{}, false, nil
	}
	return products[0], true, nil
}

// PeakOf picks the hour with the highest count; the earliest hour wins ties.
func PeakOf(hours []HourlyPoint) (PeakHour, bool) {
	var peak PeakHour
	found := false
	for _, h := range hours {
		if h.Count <= 0 {
			continue
		}
		if !found || h.Count > peak.Count {
			peak = PeakHour{Hour: h.Hour, Count: h.Count}
			found = true
		}
	}
	return peak, found
}

// WeekdayPeaks folds heat map cells into one entry per weekday with a full
// 24 hour breakdown. Days without sales report peak hour 0 with zero count
// and revenue.
func WeekdayPeaks(cells []WeekdayHourCell) []WeekdayPeak {
	days := make([]WeekdayPeak, 7)
	for wd := range days {
		days[wd] = WeekdayPeak{
			Weekday:         wd,
			WeekdayName:     time.Weekday(wd).String(),
			HourlyBreakdown: emptyHours(),
		}
	}
	for _, c := range cells {
		if c.Weekday < 0 || c.Weekday > 6 || c.Hour < 0 || c.Hour > 23 {
			continue
		}
		slot := &days[c.Weekday].HourlyBreakdown[c.Hour]
		slot.Count += c.Count
		slot.Revenue = money(slot.Revenue.Add(c.Revenue))
	}
	for wd := range days {
		if peak, ok := PeakOf(days[wd].HourlyBreakdown); ok {
			days[wd].PeakHour = peak.Hour
			days[wd].PeakCount = peak.Count
			days[wd].PeakRevenue = days[wd].HourlyBreakdown[peak.Hour].Revenue
		}
	}
	return days
}
