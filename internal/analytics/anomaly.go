package analytics

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	DefaultAnomalyWindowDays = 30
	DefaultAnomalyZThreshold = 2.0
	minAnomalySamples        = 7
)

// SeriesSource supplies bucketed time series.
type SeriesSource interface {
	TimeSeries(ctx context.Context, spec FilterSpec, bucket Bucket) ([]TimeSeriesPoint, error)
}

// AnomalyOptions tunes detection. Zero values fall back to the defaults.
type AnomalyOptions struct {
	WindowDays int
	ZThreshold float64
}

func (o AnomalyOptions) normalised() AnomalyOptions {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultAnomalyWindowDays
	}
	if o.ZThreshold <= 0 {
		o.ZThreshold = DefaultAnomalyZThreshold
	}
	return o
}

// AnomalyDetector flags days whose sales count or revenue sits far from the
// trailing mean of the window.
type AnomalyDetector struct {
	series SeriesSource
	clock  func() time.Time
}

// NewAnomalyDetector binds the detector to a series source.
func NewAnomalyDetector(series SeriesSource) *AnomalyDetector {
	return &AnomalyDetector{
		series: series,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the detector clock, used when the filter has no date_to.
func (d *AnomalyDetector) WithClock(fn func() time.Time) *AnomalyDetector {
	if fn != nil {
		d.clock = fn
	}
	return d
}

// Detect inspects the window of opts.WindowDays days ending at the filter's
// date_to (today when unbounded). Store and channel restrictions carry over.
// Fewer than seven days with sales yield an empty result.
func (d *AnomalyDetector) Detect(ctx context.Context, spec FilterSpec, opts AnomalyOptions) ([]Anomaly, error) {
	opts = opts.normalised()
	anchor, ok := spec.DateTo()
	if !ok {
		anchor = d.clock()
	}
	window, err := spec.WithRange(anchor.AddDate(0, 0, -(opts.WindowDays-1)), anchor)
	if err != nil {
		return nil, err
	}
	points, err := d.series.TimeSeries(ctx, window, BucketDay)
	if err != nil {
		return nil, err
	}
	anomalies, err := DetectAnomalies(points, opts.ZThreshold)
	if err != nil {
		// ErrInsufficientData: too little history to score.
		return []Anomaly{}, nil
	}
	return anomalies, nil
}

// DetectAnomalies scores daily points with population z-scores. A day is
// flagged when either its count or its revenue z-score exceeds threshold.
// The direction follows the count. Returns ErrInsufficientData below seven
// points.
func DetectAnomalies(points []TimeSeriesPoint, threshold float64) ([]Anomaly, error) {
	if len(points) < minAnomalySamples {
		return nil, fmt.Errorf("%w: %d days of data", ErrInsufficientData, len(points))
	}
	counts := make([]float64, len(points))
	revenues := make([]float64, len(points))
	for i, p := range points {
		counts[i] = float64(p.Count)
		revenues[i] = p.Revenue.InexactFloat64()
	}
	countMean := mean(counts)
	countStd := populationStd(counts, countMean)
	revenueMean := mean(revenues)
	revenueStd := populationStd(revenues, revenueMean)

	anomalies := make([]Anomaly, 0)
	for i, p := range points {
		zCount := zScore(counts[i], countMean, countStd)
		zRevenue := zScore(revenues[i], revenueMean, revenueStd)
		if zCount <= threshold && zRevenue <= threshold {
			continue
		}
		direction := DirectionLow
		if counts[i] > countMean {
			direction = DirectionHigh
		}
		anomalies = append(anomalies, Anomaly{
			Date:                p.PeriodStart,
			SalesCount:          p.Count,
			Revenue:             p.Revenue,
			ZScoreCount:         round2(zCount),
			ZScoreRevenue:       round2(zRevenue),
			Direction:           direction,
			DeviationPctCount:   deviationPct(counts[i], countMean),
			DeviationPctRevenue: deviationPct(revenues[i], revenueMean),
		})
	}
	return anomalies, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStd(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// deviationPct is the signed distance from mean in percent, 0 when the mean is 0.
func deviationPct(v, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return round1((v - mean) / mean * 100)
}

// zScore is |v-mean|/std, or 0 for a flat series.
func zScore(v, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return math.Abs(v-mean) / std
}
