package analyticsdb

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ScopeParams is the uniform sales predicate shared by every aggregate.
// Invalid dates and empty ID slices leave the dimension unrestricted.
type ScopeParams struct {
	DateFrom   pgtype.Date
	DateTo     pgtype.Date
	StoreIDs   []int64
	ChannelIDs []int64
}

func (p ScopeParams) args(extra ...interface{}) []interface{} {
	stores := p.StoreIDs
	if stores == nil {
		stores = []int64{}
	}
	channels := p.ChannelIDs
	if channels == nil {
		channels = []int64{}
	}
	return append([]interface{}{p.DateFrom, p.DateTo, stores, channels}, extra...)
}

type SalesSummaryRow struct {
	SalesCount  int64
	TotalAmount decimal.Decimal
}

type TimeSeriesParams struct {
	Scope  ScopeParams
	Bucket string
}

type TimeSeriesRow struct {
	PeriodStart time.Time
	SalesCount  int64
	Revenue     decimal.Decimal
}

type HourlyRow struct {
	Hour       int32
	SalesCount int64
	Revenue    decimal.Decimal
}

type WeekdayHourRow struct {
	Weekday    int32
	Hour       int32
	SalesCount int64
	Revenue    decimal.Decimal
}

type TopProductsParams struct {
	Scope ScopeParams
	Limit int32
}

type TopProductRow struct {
	ProductID int64
	Name      string
	Quantity  int64
	Revenue   decimal.Decimal
	AvgPrice  decimal.Decimal
}

type StorePerformanceRow struct {
	StoreID              int64
	Name                 string
	City                 pgtype.Text
	SalesCount           int64
	Revenue              decimal.Decimal
	AvgProductionSeconds pgtype.Float8
}

type ChannelPerformanceRow struct {
	ChannelID          int64
	Name               string
	Type               pgtype.Text
	SalesCount         int64
	Revenue            decimal.Decimal
	AvgDeliverySeconds pgtype.Float8
}

type PaymentMixRow struct {
	PaymentTypeID    int64
	Description      string
	TransactionCount int64
	TotalValue       decimal.Decimal
	AvgValue         decimal.Decimal
}

type CustomizationsParams struct {
	Scope ScopeParams
	Limit int32
}

type CustomizationRow struct {
	ItemID       int64
	Name         string
	TimesAdded   int64
	TotalRevenue decimal.Decimal
	AvgPrice     decimal.Decimal
}

type CustomizedProductRow struct {
	ProductID           int64
	Name                string
	TotalSold           int64
	TotalCustomizations int64
	AvgBasePrice        decimal.Decimal
}

type DeliveryRegionRow struct {
	Neighborhood       pgtype.Text
	City               pgtype.Text
	TotalDeliveries    int64
	AvgDeliveryMinutes float64
	AvgOrderValue      decimal.Decimal
	P90DeliveryMinutes float64
}

type StoreRow struct {
	ID   int64
	Name string
}
