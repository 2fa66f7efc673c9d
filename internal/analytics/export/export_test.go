package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
)

func sampleSnapshot() analytics.DashboardSnapshot {
	return analytics.DashboardSnapshot{
		Filter:      "from=2024-10-01|to=2024-10-10|stores=-|channels=-",
		GeneratedAt: time.Date(2024, 10, 11, 9, 0, 0, 0, time.UTC),
		KPIs: analytics.KPIs{
			SalesSummary: analytics.SalesSummary{
				Count:       3,
				TotalAmount: decimal.RequireFromString("425.5"),
				AvgAmount:   decimal.RequireFromString("141.83"),
			},
			ActiveStores: 2,
		},
		Growth: analytics.Growth{RevenueGrowth: -12.5},
		TimeSeries: []analytics.TimeSeriesPoint{
			{PeriodStart: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), Count: 3, Revenue: decimal.RequireFromString("425.5")},
		},
		TopProducts: []analytics.ProductRank{
			{ProductID: 1, Name: "Pizza, large", Quantity: 3, Revenue: decimal.RequireFromString("90")},
		},
		Anomalies: []analytics.Anomaly{
			{
				Date:                time.Date(2024, 10, 4, 0, 0, 0, 0, time.UTC),
				SalesCount:          10,
				Revenue:             decimal.RequireFromString("5000"),
				ZScoreRevenue:       2.45,
				Direction:           analytics.DirectionLow,
				DeviationPctRevenue: 464.5,
			},
		},
	}
}

func TestWriteKPICSV(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteKPICSV(buf, sampleSnapshot()); err != nil {
		t.Fatalf("kpi csv error: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("csv read error: %v", err)
	}
	if len(records) != 7 {
		t.Fatalf("expected 7 records, got %d", len(records))
	}
	if records[3][0] != "Revenue" || records[3][1] != "425.50" || records[3][2] != "-12.5" {
		t.Fatalf("unexpected revenue row %v", records[3])
	}
}

func TestWriteDashboardCSVSections(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteDashboardCSV(buf, sampleSnapshot()); err != nil {
		t.Fatalf("dashboard csv error: %v", err)
	}
	out := buf.String()
	for _, header := range []string{"Metric,Value,Growth %", "Period Start,Sales", "Product ID,Product", "Store ID,Store", "Channel ID,Channel", "Date,Direction"} {
		if !strings.Contains(out, header) {
			t.Fatalf("missing section %q in %s", header, out)
		}
	}
	if !strings.Contains(out, "2024-10-04,low,10,5000.00,0.00,2.45,0.0,464.5") {
		t.Fatalf("expected anomaly row with both z-scores in %s", out)
	}
	if !strings.Contains(out, `"Pizza, large"`) {
		t.Fatalf("expected quoted product name in %s", out)
	}
}

func TestWriteTimeSeriesCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteTimeSeriesCSV(buf, sampleSnapshot().TimeSeries); err != nil {
		t.Fatalf("series csv error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d", len(lines))
	}
	if lines[1] != "2024-10-01T00:00:00Z,3,425.50,0.00" {
		t.Fatalf("unexpected row %q", lines[1])
	}
}
