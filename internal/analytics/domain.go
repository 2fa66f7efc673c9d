package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bucket is the granularity of a time series.
type Bucket string

const (
	BucketHour  Bucket = "hour"
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Valid reports whether the bucket is one of the supported granularities.
func (b Bucket) Valid() bool {
	switch b {
	case BucketHour, BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

// ChannelType separates delivery channels from in-person ones.
type ChannelType string

const (
	ChannelDelivery   ChannelType = "DELIVERY"
	ChannelPresential ChannelType = "PRESENTIAL"
)

// SalesSummary is the count and value of completed sales in scope.
type SalesSummary struct {
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AvgAmount   decimal.Decimal `json:"avg_amount"`
}

// KPIs is the headline card of the dashboard.
type KPIs struct {
	SalesSummary
	ActiveStores int64 `json:"active_stores"`
}

type TimeSeriesPoint struct {
	PeriodStart time.Time       `json:"period_start"`
	Count       int64           `json:"count"`
	Revenue     decimal.Decimal `json:"revenue"`
	AvgTicket   decimal.Decimal `json:"avg_ticket"`
}

type HourlyPoint struct {
	Hour    int             `json:"hour"`
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

type ProductRank struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}

type StorePerformance struct {
	StoreID              int64           `json:"store_id"`
	StoreName            string          `json:"store_name"`
	City                 string          `json:"city"`
	Count                int64           `json:"count"`
	Revenue              decimal.Decimal `json:"revenue"`
	AvgTicket            decimal.Decimal `json:"avg_ticket"`
	AvgProductionMinutes float64         `json:"avg_production_minutes"`
}

type ChannelPerformance struct {
	ChannelID          int64           `json:"channel_id"`
	ChannelName        string          `json:"channel_name"`
	ChannelType        ChannelType     `json:"channel_type"`
	Count              int64           `json:"count"`
	Revenue            decimal.Decimal `json:"revenue"`
	AvgTicket          decimal.Decimal `json:"avg_ticket"`
	AvgDeliveryMinutes float64         `json:"avg_delivery_minutes"`
}

type PaymentMix struct {
	PaymentType       string          `json:"payment_type"`
	TransactionCount  int64           `json:"transaction_count"`
	TotalValue        decimal.Decimal `json:"total_value"`
	AvgValue          decimal.Decimal `json:"avg_value"`
	PercentageOfTotal float64         `json:"percentage_of_total"`
}

type Customization struct {
	ItemID       int64           `json:"item_id"`
	ItemName     string          `json:"item_name"`
	TimesAdded   int64           `json:"times_added"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
}

type CustomizedProduct struct {
	ProductID           int64           `json:"product_id"`
	Name                string          `json:"name"`
	TotalSold           int64           `json:"total_sold"`
	TotalCustomizations int64           `json:"total_customizations"`
	CustomizationRate   float64         `json:"customization_rate"`
	AvgBasePrice        decimal.Decimal `json:"avg_base_price"`
}

type RegionDelivery struct {
	Neighborhood       string          `json:"neighborhood"`
	City               string          `json:"city"`
	TotalDeliveries    int64           `json:"total_deliveries"`
	AvgDeliveryMinutes float64         `json:"avg_delivery_minutes"`
	AvgOrderValue      decimal.Decimal `json:"avg_order_value"`
	P90DeliveryMinutes float64         `json:"p90_delivery_minutes"`
}

// WeekdayHourCell is one (weekday, hour) cell of the weekly heat map.
// Weekday follows time.Weekday numbering, Sunday is 0.
type WeekdayHourCell struct {
	Weekday int             `json:"weekday"`
	Hour    int             `json:"hour"`
	Count   int64           `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

type WeekdayPeak struct {
	Weekday         int             `json:"weekday"`
	WeekdayName     string          `json:"weekday_name"`
	PeakHour        int             `json:"peak_hour"`
	PeakCount       int64           `json:"peak_count"`
	PeakRevenue     decimal.Decimal `json:"peak_revenue"`
	HourlyBreakdown []HourlyPoint   `json:"hourly_breakdown"`
}

// PeakHour is the busiest hour of a distribution.
type PeakHour struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// Growth holds percentage deltas against the previous period.
type Growth struct {
	RevenueGrowth float64 `json:"revenue_growth"`
	SalesGrowth   float64 `json:"sales_growth"`
	TicketGrowth  float64 `json:"ticket_growth"`
}

type AnomalyDirection string

const (
	DirectionHigh AnomalyDirection = "high"
	DirectionLow  AnomalyDirection = "low"
)

// Anomaly is one flagged day. Z-scores are absolute; deviations are signed
// percentages against the window mean.
type Anomaly struct {
	Date                time.Time        `json:"date"`
	SalesCount          int64            `json:"sales_count"`
	Revenue             decimal.Decimal  `json:"revenue"`
	ZScoreCount         float64          `json:"z_score_count"`
	ZScoreRevenue       float64          `json:"z_score_revenue"`
	Direction           AnomalyDirection `json:"direction"`
	DeviationPctCount   float64          `json:"deviation_pct_count"`
	DeviationPctRevenue float64          `json:"deviation_pct_revenue"`
}

// Level is shared by alert severity and insight priority.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Category tags alerts and insights by business area.
type Category string

const (
	CategoryMarketing  Category = "marketing"
	CategoryOperations Category = "operations"
	CategoryFinancial  Category = "financial"
)

type Alert struct {
	Rule     string   `json:"rule"`
	Category Category `json:"category"`
	Severity Level    `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
}

type Insight struct {
	Rule        string   `json:"rule"`
	Category    Category `json:"category"`
	Priority    Level    `json:"priority"`
	Icon        string   `json:"icon"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Metric      string   `json:"metric"`
}
