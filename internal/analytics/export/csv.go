package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
)

// WriteDashboardCSV serialises a dashboard snapshot as consecutive CSV
// sections separated by a blank record.
func WriteDashboardCSV(w io.Writer, snap analytics.DashboardSnapshot) error {
	writer := csv.NewWriter(w)
	sections := []func(*csv.Writer, analytics.DashboardSnapshot) error{
		writeKPIs,
		writeTimeSeries,
		writeTopProducts,
		writeStorePerformance,
		writeChannelPerformance,
		writeAnomalies,
	}
	for i, section := range sections {
		if i > 0 {
			if err := writer.Write([]string{}); err != nil {
				return err
			}
		}
		if err := section(writer, snap); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteKPICSV emits the headline card with its growth against the previous period.
func WriteKPICSV(w io.Writer, snap analytics.DashboardSnapshot) error {
	writer := csv.NewWriter(w)
	if err := writeKPIs(writer, snap); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteTimeSeriesCSV emits one row per bucket.
func WriteTimeSeriesCSV(w io.Writer, points []analytics.TimeSeriesPoint) error {
	writer := csv.NewWriter(w)
	if err := writeTimeSeries(writer, analytics.DashboardSnapshot{TimeSeries: points}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func writeKPIs(writer *csv.Writer, snap analytics.DashboardSnapshot) error {
	if err := writer.Write([]string{"Metric", "Value", "Growth %"}); err != nil {
		return err
	}
	records := [][]string{
		{"Filter", snap.Filter, ""},
		{"Generated At", snap.GeneratedAt.UTC().Format(time.RFC3339), ""},
		{"Revenue", snap.KPIs.TotalAmount.StringFixed(2), formatFloat(snap.Growth.RevenueGrowth)},
		{"Sales", strconv.FormatInt(snap.KPIs.Count, 10), formatFloat(snap.Growth.SalesGrowth)},
		{"Average Ticket", snap.KPIs.AvgAmount.StringFixed(2), formatFloat(snap.Growth.TicketGrowth)},
		{"Active Stores", strconv.FormatInt(snap.KPIs.ActiveStores, 10), ""},
	}
	return writer.WriteAll(records)
}

func writeTimeSeries(writer *csv.Writer, snap analytics.DashboardSnapshot) error {
	if err := writer.Write([]string{"Period Start", "Sales", "Revenue", "Average Ticket"}); err != nil {
		return err
	}
	for _, point := range snap.TimeSeries {
		if err := writer.Write([]string{
			point.PeriodStart.UTC().Format(time.RFC3339),
			strconv.FormatInt(point.Count, 10),
			point.Revenue.StringFixed(2),
			point.AvgTicket.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeTopProducts(writer *csv.Writer, snap analytics.DashboardSnapshot) error {
	if err := writer.Write([]string{"Product ID", "Product", "Quantity", "Revenue", "Average Price"}); err != nil {
		return err
	}
	for _, p := range snap.TopProducts {
		if err := writer.Write([]string{
			strconv.FormatInt(p.ProductID, 10),
			p.Name,
			strconv.FormatInt(p.Quantity, 10),
			p.Revenue.StringFixed(2),
			p.AvgPrice.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeStorePerformance(writer *csv.Writer, snap analytics.DashboardSnapshot) error {
	if err := writer.Write([]string{"Store ID", "Store", "City", "Sales", "Revenue", "Average Ticket", "Avg Production Min"}); err != nil {
		return err
	}
	for _, s := range snap.StorePerformance {
		if err := writer.Write([]string{
			strconv.FormatInt(s.StoreID, 10),
			s.StoreName,
			s.City,
			strconv.FormatInt(s.Count, 10),
			s.Revenue.StringFixed(2),
			s.AvgTicket.StringFixed(2),
			formatFloat(s.AvgProductionMinutes),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeChannelPerformance(writer *csv.Writer, snap analytics.DashboardSnapshot) error {
	if err := writer.Write([]string{"Channel ID", "Channel", "Type", "Sales", "Revenue", "Average Ticket", "Avg Delivery Min"}); err != nil {
		return err
	}
	for _, c := range snap.ChannelPerformance {
		if err := writer.Write([]string{
			strconv.FormatInt(c.ChannelID, 10),
			c.ChannelName,
			string(c.ChannelType),
			strconv.FormatInt(c.Count, 10),
			c.Revenue.StringFixed(2),
			c.AvgTicket.StringFixed(2),
			formatFloat(c.AvgDeliveryMinutes),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeAnomalies(writer *csv.Writer, snap analytics.DashboardSnapshot) error {
	if err := writer.Write([]string{"Date", "Direction", "Sales", "Revenue", "Z Count", "Z Revenue", "Deviation Count %", "Deviation Revenue %"}); err != nil {
		return err
	}
	for _, a := range snap.Anomalies {
		if err := writer.Write([]string{
			a.Date.UTC().Format("2006-01-02"),
			string(a.Direction),
			strconv.FormatInt(a.SalesCount, 10),
			a.Revenue.StringFixed(2),
			strconv.FormatFloat(a.ZScoreCount, 'f', 2, 64),
			strconv.FormatFloat(a.ZScoreRevenue, 'f', 2, 64),
			formatFloat(a.DeviationPctCount),
			formatFloat(a.DeviationPctRevenue),
		}); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
