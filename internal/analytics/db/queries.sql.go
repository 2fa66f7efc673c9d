package analyticsdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// salesScope is appended to every statement reading from sales aliased "s".
// Parameters $1..$4 come from ScopeParams.args.
const salesScope = `s.sale_status_desc = 'COMPLETED'
  AND ($1::date IS NULL OR s.created_at >= $1::date)
  AND ($2::date IS NULL OR s.created_at < $2::date + INTERVAL '1 day')
  AND (COALESCE(cardinality($3::bigint[]), 0) = 0 OR s.store_id = ANY($3::bigint[]))
  AND (COALESCE(cardinality($4::bigint[]), 0) = 0 OR s.channel_id = ANY($4::bigint[]))`

var validBuckets = map[string]struct{}{
	"hour":  {},
	"day":   {},
	"week":  {},
	"month": {},
}

const salesSummary = `
SELECT COUNT(*)::bigint, COALESCE(SUM(s.total_amount), 0)::numeric
FROM sales s
WHERE ` + salesScope

func (q *Queries) SalesSummary(ctx context.Context, arg ScopeParams) (SalesSummaryRow, error) {
	var row SalesSummaryRow
	err := q.db.QueryRow(ctx, salesSummary, arg.args()...).Scan(&row.SalesCount, &row.TotalAmount)
	return row, err
}

const countActiveStores = `SELECT COUNT(*)::bigint FROM stores WHERE is_active`

func (q *Queries) CountActiveStores(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countActiveStores).Scan(&count)
	return count, err
}

const listActiveStores = `SELECT id, name FROM stores WHERE is_active ORDER BY id`

func (q *Queries) ListActiveStores(ctx context.Context) ([]StoreRow, error) {
	rows, err := q.db.Query(ctx, listActiveStores)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (StoreRow, error) {
		var s StoreRow
		err := r.Scan(&s.ID, &s.Name)
		return s, err
	})
}

// date_trunc('week', ...) starts weeks on Monday (ISO 8601).
const timeSeries = `
SELECT date_trunc($5::text, s.created_at)::timestamp AS period_start,
       COUNT(*)::bigint,
       COALESCE(SUM(s.total_amount), 0)::numeric
FROM sales s
WHERE ` + salesScope + `
GROUP BY 1
ORDER BY 1`

func (q *Queries) TimeSeries(ctx context.Context, arg TimeSeriesParams) ([]TimeSeriesRow, error) {
	if _, ok := validBuckets[arg.Bucket]; !ok {
		return nil, fmt.Errorf("analyticsdb: unsupported bucket %q", arg.Bucket)
	}
	rows, err := q.db.Query(ctx, timeSeries, arg.Scope.args(arg.Bucket)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (TimeSeriesRow, error) {
		var t TimeSeriesRow
		err := r.Scan(&t.PeriodStart, &t.SalesCount, &t.Revenue)
		return t, err
	})
}

const hourlyDistribution = `
SELECT EXTRACT(HOUR FROM s.created_at)::int AS hour,
       COUNT(*)::bigint,
       COALESCE(SUM(s.total_amount), 0)::numeric
FROM sales s
WHERE ` + salesScope + `
GROUP BY 1
ORDER BY 1`

func (q *Queries) HourlyDistribution(ctx context.Context, arg ScopeParams) ([]HourlyRow, error) {
	rows, err := q.db.Query(ctx, hourlyDistribution, arg.args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (HourlyRow, error) {
		var h HourlyRow
		err := r.Scan(&h.Hour, &h.SalesCount, &h.Revenue)
		return h, err
	})
}

// EXTRACT(DOW) numbers Sunday as 0.
const weekdayHourly = `
SELECT EXTRACT(DOW FROM s.created_at)::int AS weekday,
       EXTRACT(HOUR FROM s.created_at)::int AS hour,
       COUNT(*)::bigint,
       COALESCE(SUM(s.total_amount), 0)::numeric
FROM sales s
WHERE ` + salesScope + `
GROUP BY 1, 2
ORDER BY 1, 2`

func (q *Queries) WeekdayHourly(ctx context.Context, arg ScopeParams) ([]WeekdayHourRow, error) {
	rows, err := q.db.Query(ctx, weekdayHourly, arg.args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (WeekdayHourRow, error) {
		var w WeekdayHourRow
		err := r.Scan(&w.Weekday, &w.Hour, &w.SalesCount, &w.Revenue)
		return w, err
	})
}

const topProducts = `
SELECT p.id,
       p.name,
       COALESCE(SUM(ps.quantity), 0)::bigint AS quantity,
       COALESCE(SUM(ps.total_price), 0)::numeric AS revenue,
       COALESCE(AVG(ps.base_price), 0)::numeric AS avg_price
FROM product_sales ps
JOIN products p ON p.id = ps.product_id
JOIN sales s ON s.id = ps.sale_id
WHERE ` + salesScope + `
GROUP BY p.id, p.name
ORDER BY quantity DESC, p.id ASC
LIMIT $5`

func (q *Queries) TopProducts(ctx context.Context, arg TopProductsParams) ([]TopProductRow, error) {
	rows, err := q.db.Query(ctx, topProducts, arg.Scope.args(arg.Limit)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (TopProductRow, error) {
		var t TopProductRow
		err := r.Scan(&t.ProductID, &t.Name, &t.Quantity, &t.Revenue, &t.AvgPrice)
		return t, err
	})
}

const storePerformance = `
SELECT st.id,
       st.name,
       st.city,
       COUNT(*)::bigint,
       COALESCE(SUM(s.total_amount), 0)::numeric,
       AVG(s.production_seconds)::float8
FROM sales s
JOIN stores st ON st.id = s.store_id
WHERE ` + salesScope + `
GROUP BY st.id, st.name, st.city`

func (q *Queries) StorePerformance(ctx context.Context, arg ScopeParams) ([]StorePerformanceRow, error) {
	rows, err := q.db.Query(ctx, storePerformance, arg.args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (StorePerformanceRow, error) {
		var p StorePerformanceRow
		err := r.Scan(&p.StoreID, &p.Name, &p.City, &p.SalesCount, &p.Revenue, &p.AvgProductionSeconds)
		return p, err
	})
}

const channelPerformance = `
SELECT c.id,
       c.name,
       c.type,
       COUNT(*)::bigint,
       COALESCE(SUM(s.total_amount), 0)::numeric,
       AVG(s.delivery_seconds)::float8
FROM sales s
JOIN channels c ON c.id = s.channel_id
WHERE ` + salesScope + `
GROUP BY c.id, c.name, c.type`

func (q *Queries) ChannelPerformance(ctx context.Context, arg ScopeParams) ([]ChannelPerformanceRow, error) {
	rows, err := q.db.Query(ctx, channelPerformance, arg.args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (ChannelPerformanceRow, error) {
		var p ChannelPerformanceRow
		err := r.Scan(&p.ChannelID, &p.Name, &p.Type, &p.SalesCount, &p.Revenue, &p.AvgDeliverySeconds)
		return p, err
	})
}

const paymentMix = `
SELECT pt.id,
       pt.description,
       COUNT(*)::bigint,
       COALESCE(SUM(pm.value), 0)::numeric,
       COALESCE(AVG(pm.value), 0)::numeric
FROM payments pm
JOIN payment_types pt ON pt.id = pm.payment_type_id
JOIN sales s ON s.id = pm.sale_id
WHERE ` + salesScope + `
GROUP BY pt.id, pt.description`

func (q *Queries) PaymentMix(ctx context.Context, arg ScopeParams) ([]PaymentMixRow, error) {
	rows, err := q.db.Query(ctx, paymentMix, arg.args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (PaymentMixRow, error) {
		var p PaymentMixRow
		err := r.Scan(&p.PaymentTypeID, &p.Description, &p.TransactionCount, &p.TotalValue, &p.AvgValue)
		return p, err
	})
}

const popularCustomizations = `
SELECT i.id,
       i.name,
       COUNT(*)::bigint AS times_added,
       COALESCE(SUM(ips.price), 0)::numeric,
       COALESCE(AVG(ips.price), 0)::numeric
FROM item_product_sales ips
JOIN items i ON i.id = ips.item_id
JOIN product_sales ps ON ps.id = ips.product_sale_id
JOIN sales s ON s.id = ps.sale_id
WHERE ` + salesScope + `
GROUP BY i.id, i.name
ORDER BY times_added DESC, i.id ASC
LIMIT $5`

func (q *Queries) PopularCustomizations(ctx context.Context, arg CustomizationsParams) ([]CustomizationRow, error) {
	rows, err := q.db.Query(ctx, popularCustomizations, arg.Scope.args(arg.Limit)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (CustomizationRow, error) {
		var c CustomizationRow
		err := r.Scan(&c.ItemID, &c.Name, &c.TimesAdded, &c.TotalRevenue, &c.AvgPrice)
		return c, err
	})
}

const customizedProducts = `
SELECT p.id,
       p.name,
       COUNT(*)::bigint AS total_sold,
       COALESCE(SUM(cz.n), 0)::bigint AS total_customizations,
       COALESCE(AVG(ps.base_price), 0)::numeric
FROM product_sales ps
JOIN products p ON p.id = ps.product_id
JOIN sales s ON s.id = ps.sale_id
LEFT JOIN LATERAL (
    SELECT COUNT(*) AS n FROM item_product_sales ips WHERE ips.product_sale_id = ps.id
) cz ON TRUE
WHERE ` + salesScope + `
GROUP BY p.id, p.name`

func (q *Queries) CustomizedProducts(ctx context.Context, arg ScopeParams) ([]CustomizedProductRow, error) {
	rows, err := q.db.Query(ctx, customizedProducts, arg.args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (CustomizedProductRow, error) {
		var c CustomizedProductRow
		err := r.Scan(&c.ProductID, &c.Name, &c.TotalSold, &c.TotalCustomizations, &c.AvgBasePrice)
		return c, err
	})
}

const deliveryByRegion = `
SELECT da.neighborhood,
       da.city,
       COUNT(*)::bigint,
       AVG(s.delivery_seconds / 60.0)::float8,
       COALESCE(AVG(s.total_amount), 0)::numeric,
       PERCENTILE_CONT(0.9) WITHIN GROUP (ORDER BY s.delivery_seconds / 60.0)::float8
FROM sales s
JOIN delivery_addresses da ON da.sale_id = s.id
JOIN channels c ON c.id = s.channel_id
WHERE c.type = 'D'
  AND s.delivery_seconds IS NOT NULL
  AND ` + salesScope + `
GROUP BY da.neighborhood, da.city`

func (q *Queries) DeliveryByRegion(ctx context.Context, arg ScopeParams) ([]DeliveryRegionRow, error) {
	rows, err := q.db.Query(ctx, deliveryByRegion, arg.args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (DeliveryRegionRow, error) {
		var d DeliveryRegionRow
		err := r.Scan(&d.Neighborhood, &d.City, &d.TotalDeliveries, &d.AvgDeliveryMinutes, &d.AvgOrderValue, &d.P90DeliveryMinutes)
		return d, err
	})
}
