package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	analyticsdb "github.com/odyssey-erp/restaurant-analytics/internal/analytics/db"
)

// CountAndSum returns the number and value of completed sales in scope.
func (s *Service) CountAndSum(ctx context.Context, spec FilterSpec) (SalesSummary, error) {
	return cached(ctx, s.cache, OpSalesSummary, cacheKey(OpSalesSummary, spec), func(ctx context.Context) (SalesSummary, error) {
		var row analyticsdb.SalesSummaryRow
		err := s.query(ctx, "sales summary", func(ctx context.Context) error {
			var err error
			row, err = s.repo.SalesSummary(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return SalesSummary{}, err
		}
		return SalesSummary{
			Count:       row.SalesCount,
			TotalAmount: money(row.TotalAmount),
			AvgAmount:   average(row.TotalAmount, row.SalesCount),
		}, nil
	})
}

// CountActiveStores returns the number of stores flagged active. It ignores
// the filter on purpose: it is a property of the chain, not of the sales.
func (s *Service) CountActiveStores(ctx context.Context) (int64, error) {
	key := strings.Join([]string{"analytics", string(OpActiveStores)}, ":")
	return cached(ctx, s.cache, OpActiveStores, key, func(ctx context.Context) (int64, error) {
		var count int64
		err := s.query(ctx, "count active stores", func(ctx context.Context) error {
			var err error
			count, err = s.repo.CountActiveStores(ctx)
			return err
		})
		return count, err
	})
}

// TimeSeries buckets completed sales by hour, day, ISO week or month, in
// ascending order. Empty buckets are omitted.
func (s *Service) TimeSeries(ctx context.Context, spec FilterSpec, bucket Bucket) ([]TimeSeriesPoint, error) {
	if !bucket.Valid() {
		return nil, fmt.Errorf("%w: unsupported bucket %q", ErrInvalidFilter, bucket)
	}
	key := cacheKey(OpTimeSeries, spec, string(bucket))
	return cached(ctx, s.cache, OpTimeSeries, key, func(ctx context.Context) ([]TimeSeriesPoint, error) {
		var rows []analyticsdb.TimeSeriesRow
		err := s.query(ctx, "time series", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.TimeSeries(ctx, analyticsdb.TimeSeriesParams{Scope: scopeParams(spec), Bucket: string(bucket)})
			return err
		})
		if err != nil {
			return nil, err
		}
		points := make([]TimeSeriesPoint, 0, len(rows))
		for _, row := range rows {
			points = append(points, TimeSeriesPoint{
				PeriodStart: row.PeriodStart.UTC(),
				Count:       row.SalesCount,
				Revenue:     money(row.Revenue),
				AvgTicket:   average(row.Revenue, row.SalesCount),
			})
		}
		sort.SliceStable(points, func(i, j int) bool { return points[i].PeriodStart.Before(points[j].PeriodStart) })
		return points, nil
	})
}

// HourlyDistribution always returns 24 entries, hour 0 through 23.
func (s *Service) HourlyDistribution(ctx context.Context, spec FilterSpec) ([]HourlyPoint, error) {
	return cached(ctx, s.cache, OpHourlyDistribution, cacheKey(OpHourlyDistribution, spec), func(ctx context.Context) ([]HourlyPoint, error) {
		var rows []analyticsdb.HourlyRow
		err := s.query(ctx, "hourly distribution", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.HourlyDistribution(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return nil, err
		}
		hours := emptyHours()
		for _, row := range rows {
			if row.Hour < 0 || row.Hour > 23 {
				continue
			}
			hours[row.Hour].Count += row.SalesCount
			hours[row.Hour].Revenue = money(hours[row.Hour].Revenue.Add(row.Revenue))
		}
		return hours, nil
	})
}

// WeekdayHourly returns the non-empty (weekday, hour) cells, Sunday first.
func (s *Service) WeekdayHourly(ctx context.Context, spec FilterSpec) ([]WeekdayHourCell, error) {
	return cached(ctx, s.cache, OpWeekdayHourly, cacheKey(OpWeekdayHourly, spec), func(ctx context.Context) ([]WeekdayHourCell, error) {
		var rows []analyticsdb.WeekdayHourRow
		err := s.query(ctx, "weekday hourly", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.WeekdayHourly(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return nil, err
		}
		cells := make([]WeekdayHourCell, 0, len(rows))
		for _, row := range rows {
			if row.Weekday < 0 || row.Weekday > 6 || row.Hour < 0 || row.Hour > 23 {
				continue
			}
			cells = append(cells, WeekdayHourCell{
				Weekday: int(row.Weekday),
				Hour:    int(row.Hour),
				Count:   row.SalesCount,
				Revenue: money(row.Revenue),
			})
		}
		sort.SliceStable(cells, func(i, j int) bool {
			if cells[i].Weekday != cells[j].Weekday {
				return cells[i].Weekday < cells[j].Weekday
			}
			return cells[i].Hour < cells[j].Hour
		})
		return cells, nil
	})
}

// TopProducts ranks products by quantity sold. Ties break on product id so
// the ranking is deterministic.
func (s *Service) TopProducts(ctx context.Context, spec FilterSpec, limit int) ([]ProductRank, error) {
	if limit <= 0 {
		return []ProductRank{}, nil
	}
	key := cacheKey(OpTopProducts, spec, strconv.Itoa(limit))
	return cached(ctx, s.cache, OpTopProducts, key, func(ctx context.Context) ([]ProductRank, error) {
		var rows []analyticsdb.TopProductRow
		err := s.query(ctx, "top products", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.TopProducts(ctx, analyticsdb.TopProductsParams{Scope: scopeParams(spec), Limit: int32(limit)})
			return err
		})
		if err != nil {
			return nil, err
		}
		ranks := make([]ProductRank, 0, len(rows))
		for _, row := range rows {
			ranks = append(ranks, ProductRank{
				ProductID: row.ProductID,
				Name:      row.Name,
				Quantity:  row.Quantity,
				Revenue:   money(row.Revenue),
				AvgPrice:  money(row.AvgPrice),
			})
		}
		sort.SliceStable(ranks, func(i, j int) bool {
			if ranks[i].Quantity != ranks[j].Quantity {
				return ranks[i].Quantity > ranks[j].Quantity
			}
			return ranks[i].ProductID < ranks[j].ProductID
		})
		if len(ranks) > limit {
			ranks = ranks[:limit]
		}
		return ranks, nil
	})
}

// StorePerformance reports per-store volume ordered by revenue.
func (s *Service) StorePerformance(ctx context.Context, spec FilterSpec) ([]StorePerformance, error) {
	return cached(ctx, s.cache, OpStorePerformance, cacheKey(OpStorePerformance, spec), func(ctx context.Context) ([]StorePerformance, error) {
		var rows []analyticsdb.StorePerformanceRow
		err := s.query(ctx, "store performance", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.StorePerformance(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return nil, err
		}
		out := make([]StorePerformance, 0, len(rows))
		for _, row := range rows {
			perf := StorePerformance{
				StoreID:   row.StoreID,
				StoreName: row.Name,
				City:      textValue(row.City),
				Count:     row.SalesCount,
				Revenue:   money(row.Revenue),
				AvgTicket: average(row.Revenue, row.SalesCount),
			}
			if row.AvgProductionSeconds.Valid {
				perf.AvgProductionMinutes = round1(row.AvgProductionSeconds.Float64 / 60)
			}
			out = append(out, perf)
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].Revenue.Equal(out[j].Revenue) {
				return out[i].Revenue.GreaterThan(out[j].Revenue)
			}
			return out[i].StoreID < out[j].StoreID
		})
		return out, nil
	})
}

// ChannelPerformance reports per-channel volume ordered by revenue.
func (s *Service) ChannelPerformance(ctx context.Context, spec FilterSpec) ([]ChannelPerformance, error) {
	return cached(ctx, s.cache, OpChannelPerformance, cacheKey(OpChannelPerformance, spec), func(ctx context.Context) ([]ChannelPerformance, error) {
		var rows []analyticsdb.ChannelPerformanceRow
		err := s.query(ctx, "channel performance", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.ChannelPerformance(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return nil, err
		}
		out := make([]ChannelPerformance, 0, len(rows))
		for _, row := range rows {
			perf := ChannelPerformance{
				ChannelID:   row.ChannelID,
				ChannelName: row.Name,
				ChannelType: channelType(textValue(row.Type)),
				Count:       row.SalesCount,
				Revenue:     money(row.Revenue),
				AvgTicket:   average(row.Revenue, row.SalesCount),
			}
			if row.AvgDeliverySeconds.Valid {
				perf.AvgDeliveryMinutes = round1(row.AvgDeliverySeconds.Float64 / 60)
			}
			out = append(out, perf)
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].Revenue.Equal(out[j].Revenue) {
				return out[i].Revenue.GreaterThan(out[j].Revenue)
			}
			return out[i].ChannelID < out[j].ChannelID
		})
		return out, nil
	})
}

// PaymentMix splits payments by type with each type's share of the total value.
func (s *Service) PaymentMix(ctx context.Context, spec FilterSpec) ([]PaymentMix, error) {
	return cached(ctx, s.cache, OpPaymentMix, cacheKey(OpPaymentMix, spec), func(ctx context.Context) ([]PaymentMix, error) {
		var rows []analyticsdb.PaymentMixRow
		err := s.query(ctx, "payment mix", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.PaymentMix(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return nil, err
		}
		total := decimal.Zero
		for _, row := range rows {
			total = total.Add(row.TotalValue)
		}
		out := make([]PaymentMix, 0, len(rows))
		for _, row := range rows {
			out = append(out, PaymentMix{
				PaymentType:       row.Description,
				TransactionCount:  row.TransactionCount,
				TotalValue:        money(row.TotalValue),
				AvgValue:          money(row.AvgValue),
				PercentageOfTotal: share(row.TotalValue, total),
			})
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].TotalValue.Equal(out[j].TotalValue) {
				return out[i].TotalValue.GreaterThan(out[j].TotalValue)
			}
			return out[i].PaymentType < out[j].PaymentType
		})
		return out, nil
	})
}

// PopularCustomizations ranks add-on items by how often they were attached.
func (s *Service) PopularCustomizations(ctx context.Context, spec FilterSpec, limit int) ([]Customization, error) {
	if limit <= 0 {
		return []Customization{}, nil
	}
	key := cacheKey(OpPopularCustomizations, spec, strconv.Itoa(limit))
	return cached(ctx, s.cache, OpPopularCustomizations, key, func(ctx context.Context) ([]Customization, error) {
		var rows []analyticsdb.CustomizationRow
		err := s.query(ctx, "popular customizations", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.PopularCustomizations(ctx, analyticsdb.CustomizationsParams{Scope: scopeParams(spec), Limit: int32(limit)})
			return err
		})
		if err != nil {
			return nil, err
		}
		out := make([]Customization, 0, len(rows))
		for _, row := range rows {
			out = append(out, Customization{
				ItemID:       row.ItemID,
				ItemName:     row.Name,
				TimesAdded:   row.TimesAdded,
				TotalRevenue: money(row.TotalRevenue),
				AvgPrice:     money(row.AvgPrice),
			})
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].TimesAdded != out[j].TimesAdded {
				return out[i].TimesAdded > out[j].TimesAdded
			}
			return out[i].ItemID < out[j].ItemID
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

// MostCustomizedProducts ranks products by the share of units sold with at
// least one add-on. Products with fewer than MinCustomizedProductSales units
// are left out.
func (s *Service) MostCustomizedProducts(ctx context.Context, spec FilterSpec, limit int) ([]CustomizedProduct, error) {
	if limit <= 0 {
		return []CustomizedProduct{}, nil
	}
	key := cacheKey(OpCustomizedProducts, spec, strconv.Itoa(limit))
	return cached(ctx, s.cache, OpCustomizedProducts, key, func(ctx context.Context) ([]CustomizedProduct, error) {
		var rows []analyticsdb.CustomizedProductRow
		err := s.query(ctx, "customized products", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.CustomizedProducts(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return nil, err
		}
		out := make([]CustomizedProduct, 0, len(rows))
		for _, row := range rows {
			if row.TotalSold < MinCustomizedProductSales {
				continue
			}
			out = append(out, CustomizedProduct{
				ProductID:           row.ProductID,
				Name:                row.Name,
				TotalSold:           row.TotalSold,
				TotalCustomizations: row.TotalCustomizations,
				CustomizationRate:   round1(float64(row.TotalCustomizations) / float64(row.TotalSold) * 100),
				AvgBasePrice:        money(row.AvgBasePrice),
			})
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].CustomizationRate != out[j].CustomizationRate {
				return out[i].CustomizationRate > out[j].CustomizationRate
			}
			return out[i].ProductID < out[j].ProductID
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

// DeliveryPerformanceByRegion summarises delivery times per neighbourhood.
// Regions with fewer than MinRegionDeliveries deliveries are left out.
func (s *Service) DeliveryPerformanceByRegion(ctx context.Context, spec FilterSpec) ([]RegionDelivery, error) {
	return cached(ctx, s.cache, OpDeliveryRegions, cacheKey(OpDeliveryRegions, spec), func(ctx context.Context) ([]RegionDelivery, error) {
		var rows []analyticsdb.DeliveryRegionRow
		err := s.query(ctx, "delivery by region", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.DeliveryByRegion(ctx, scopeParams(spec))
			return err
		})
		if err != nil {
			return nil, err
		}
		out := make([]RegionDelivery, 0, len(rows))
		for _, row := range rows {
			if row.TotalDeliveries < MinRegionDeliveries {
				continue
			}
			out = append(out, RegionDelivery{
				Neighborhood:       textValue(row.Neighborhood),
				City:               textValue(row.City),
				TotalDeliveries:    row.TotalDeliveries,
				AvgDeliveryMinutes: round1(row.AvgDeliveryMinutes),
				AvgOrderValue:      money(row.AvgOrderValue),
				P90DeliveryMinutes: round1(row.P90DeliveryMinutes),
			})
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].TotalDeliveries != out[j].TotalDeliveries {
				return out[i].TotalDeliveries > out[j].TotalDeliveries
			}
			if out[i].City != out[j].City {
				return out[i].City < out[j].City
			}
			return out[i].Neighborhood < out[j].Neighborhood
		})
		return out, nil
	})
}

func emptyHours() []HourlyPoint {
	hours := make([]HourlyPoint, 24)
	for h := range hours {
		hours[h] = HourlyPoint{Hour: h, Revenue: decimal.Zero}
	}
	return hours
}

func channelType(code string) ChannelType {
	if strings.EqualFold(strings.TrimSpace(code), "D") {
		return ChannelDelivery
	}
	return ChannelPresential
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func average(total decimal.Decimal, count int64) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(count)).Round(2)
}

func share(part, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
