package analytics

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Rule names. Stable identifiers used to disable rules and to tag output.
const (
	RuleRevenueDrop            = "revenue_drop"
	RuleExceptionalGrowth      = "exceptional_growth"
	RuleTicketFallingVolumeUp  = "ticket_falling_volume_up"
	RuleUnusualPeak            = "unusual_peak"
	RuleUnderperformingChannel = "underperforming_channel"
	RuleSalesDip               = "sales_dip"
	RulePeakHour               = "peak_hour"
	RuleTopChannel             = "top_channel"
	RuleTopProduct             = "top_product"
	RuleTicketUp               = "ticket_up"
	RuleTicketDown             = "ticket_down"
)

// Thresholds parameterise the rule table. Percentages are growth points.
type Thresholds struct {
	RevenueDropPct       float64
	ExceptionalGrowthPct float64
	VolumeUpPct          float64
	TicketFallingPct     float64
	PeakMultiplier       float64
	PeakMinCount         int64
	ChannelShareOfMean   float64
	TicketUpPct          float64
	TicketDownPct        float64
	MaxInsights          int
}

// DefaultThresholds returns the stock rule configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RevenueDropPct:       -15,
		ExceptionalGrowthPct: 25,
		VolumeUpPct:          10,
		TicketFallingPct:     -5,
		PeakMultiplier:       3,
		PeakMinCount:         10,
		ChannelShareOfMean:   0.3,
		TicketUpPct:          10,
		TicketDownPct:        -5,
		MaxInsights:          6,
	}
}

// InsightInput is everything the rules may look at for one filter.
type InsightInput struct {
	KPIs        KPIs
	Growth      Growth
	Hourly      []HourlyPoint
	Channels    []ChannelPerformance
	TopProducts []ProductRank
	Anomalies   []Anomaly
}

// AlertRule fires at most one alert.
type AlertRule struct {
	Name     string
	Evaluate func(in InsightInput, th Thresholds, p *message.Printer) (Alert, bool)
}

// InsightRule fires at most one insight.
type InsightRule struct {
	Name     string
	Evaluate func(in InsightInput, th Thresholds, p *message.Printer) (Insight, bool)
}

// InsightEngine evaluates an ordered rule table. Rules are pure functions of
// their input, so evaluation holds no state between calls.
type InsightEngine struct {
	thresholds Thresholds
	alerts     []AlertRule
	insights   []InsightRule
	printer    *message.Printer
}

// EngineOption customises an InsightEngine.
type EngineOption func(*InsightEngine)

// WithoutRules disables rules by name.
func WithoutRules(names ...string) EngineOption {
	return func(e *InsightEngine) {
		skip := make(map[string]struct{}, len(names))
		for _, n := range names {
			skip[n] = struct{}{}
		}
		alerts := e.alerts[:0:0]
		for _, r := range e.alerts {
			if _, ok := skip[r.Name]; !ok {
				alerts = append(alerts, r)
			}
		}
		insights := e.insights[:0:0]
		for _, r := range e.insights {
			if _, ok := skip[r.Name]; !ok {
				insights = append(insights, r)
			}
		}
		e.alerts, e.insights = alerts, insights
	}
}

// WithAlertRules appends alert rules after the built-in ones.
func WithAlertRules(rules ...AlertRule) EngineOption {
	return func(e *InsightEngine) { e.alerts = append(e.alerts, rules...) }
}

// WithInsightRules appends insight rules after the built-in ones.
func WithInsightRules(rules ...InsightRule) EngineOption {
	return func(e *InsightEngine) { e.insights = append(e.insights, rules...) }
}

// WithLanguage selects the locale used for metric summaries.
func WithLanguage(tag language.Tag) EngineOption {
	return func(e *InsightEngine) { e.printer = message.NewPrinter(tag) }
}

// NewInsightEngine builds the engine with the built-in rule table.
func NewInsightEngine(th Thresholds, opts ...EngineOption) *InsightEngine {
	if th.MaxInsights <= 0 {
		th.MaxInsights = DefaultThresholds().MaxInsights
	}
	e := &InsightEngine{
		thresholds: th,
		alerts:     builtinAlertRules(),
		insights:   builtinInsightRules(),
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every rule in order. Insights are capped at MaxInsights.
func (e *InsightEngine) Evaluate(in InsightInput) ([]Alert, []Insight) {
	alerts := make([]Alert, 0, len(e.alerts))
	for _, r := range e.alerts {
		if a, ok := r.Evaluate(in, e.thresholds, e.printer); ok {
			a.Rule = r.Name
			alerts = append(alerts, a)
		}
	}
	insights := make([]Insight, 0, len(e.insights))
	for _, r := range e.insights {
		if len(insights) >= e.thresholds.MaxInsights {
			break
		}
		if ins, ok := r.Evaluate(in, e.thresholds, e.printer); ok {
			ins.Rule = r.Name
			insights = append(insights, ins)
		}
	}
	return alerts, insights
}

func builtinAlertRules() []AlertRule {
	return []AlertRule{
		{Name: RuleRevenueDrop, Evaluate: revenueDropAlert},
		{Name: RuleExceptionalGrowth, Evaluate: exceptionalGrowthAlert},
		{Name: RuleTicketFallingVolumeUp, Evaluate: ticketFallingAlert},
		{Name: RuleUnusualPeak, Evaluate: unusualPeakAlert},
		{Name: RuleUnderperformingChannel, Evaluate: underperformingChannelAlert},
		{Name: RuleSalesDip, Evaluate: salesDipAlert},
	}
}

func builtinInsightRules() []InsightRule {
	return []InsightRule{
		{Name: RulePeakHour, Evaluate: peakHourInsight},
		{Name: RuleTopChannel, Evaluate: topChannelInsight},
		{Name: RuleTopProduct, Evaluate: topProductInsight},
		{Name: RuleTicketUp, Evaluate: ticketUpInsight},
		{Name: RuleTicketDown, Evaluate: ticketDownInsight},
	}
}

func revenueDropAlert(in InsightInput, th Thresholds, p *message.Printer) (Alert, bool) {
	if in.Growth.RevenueGrowth >= th.RevenueDropPct {
		return Alert{}, false
	}
	return Alert{
		Category: CategoryFinancial,
		Severity: LevelHigh,
		Title:    "Critical revenue drop",
		Message:  p.Sprintf("Revenue fell %.1f%% against the previous period.", -in.Growth.RevenueGrowth),
		Action:   "Review promotions, pricing and store operations for the affected period.",
	}, true
}

func exceptionalGrowthAlert(in InsightInput, th Thresholds, p *message.Printer) (Alert, bool) {
	if in.Growth.RevenueGrowth <= th.ExceptionalGrowthPct {
		return Alert{}, false
	}
	return Alert{
		Category: CategoryFinancial,
		Severity: LevelLow,
		Title:    "Exceptional growth",
		Message:  p.Sprintf("Revenue grew %.1f%% against the previous period.", in.Growth.RevenueGrowth),
		Action:   "Check stock levels and staffing to sustain the demand.",
	}, true
}

func ticketFallingAlert(in InsightInput, th Thresholds, p *message.Printer) (Alert, bool) {
	if in.Growth.SalesGrowth <= th.VolumeUpPct || in.Growth.TicketGrowth >= th.TicketFallingPct {
		return Alert{}, false
	}
	return Alert{
		Category: CategoryFinancial,
		Severity: LevelMedium,
		Title:    "Average ticket falling while volume rises",
		Message: p.Sprintf("Sales grew %.1f%% but the average ticket changed %.1f%%.",
			in.Growth.SalesGrowth, in.Growth.TicketGrowth),
		Action: "Promote combos and add-ons to lift the ticket.",
	}, true
}

func unusualPeakAlert(in InsightInput, th Thresholds, p *message.Printer) (Alert, bool) {
	if len(in.Hourly) == 0 {
		return Alert{}, false
	}
	var total int64
	for _, h := range in.Hourly {
		total += h.Count
	}
	avg := float64(total) / 24
	for _, h := range in.Hourly {
		if float64(h.Count) > th.PeakMultiplier*avg && h.Count > th.PeakMinCount {
			return Alert{
				Category: CategoryOperations,
				Severity: LevelLow,
				Title:    "Unusual peak",
				Message:  p.Sprintf("%02d:00 concentrated %d sales, %.1f times the hourly average.", h.Hour, h.Count, float64(h.Count)/avg),
				Action:   "Reinforce the team for this time slot.",
			}, true
		}
	}
	return Alert{}, false
}

func underperformingChannelAlert(in InsightInput, th Thresholds, p *message.Printer) (Alert, bool) {
	if len(in.Channels) < 2 {
		return Alert{}, false
	}
	total := decimal.Zero
	for _, c := range in.Channels {
		total = total.Add(c.Revenue)
	}
	avg := total.Div(decimal.NewFromInt(int64(len(in.Channels))))
	limit := avg.Mul(decimal.NewFromFloat(th.ChannelShareOfMean))
	for _, c := range in.Channels {
		if c.Revenue.IsPositive() && c.Revenue.LessThan(limit) {
			return Alert{
				Category: CategoryMarketing,
				Severity: LevelMedium,
				Title:    "Underperforming channel",
				Message:  p.Sprintf("%s brought %s in revenue against a channel average of %s.", c.ChannelName, c.Revenue.StringFixed(2), avg.StringFixed(2)),
				Action:   "Review the channel's visibility, fees and campaigns.",
			}, true
		}
	}
	return Alert{}, false
}

// salesDipAlert reports the latest low anomaly in the window.
func salesDipAlert(in InsightInput, _ Thresholds, p *message.Printer) (Alert, bool) {
	for i := len(in.Anomalies) - 1; i >= 0; i-- {
		a := in.Anomalies[i]
		if a.Direction != DirectionLow {
			continue
		}
		return Alert{
			Category: CategoryOperations,
			Severity: LevelMedium,
			Title:    "Unusual sales dip",
			Message:  p.Sprintf("%s had %d sales, %.1f%% from the daily average.", a.Date.Format(dateLayout), a.SalesCount, a.DeviationPctCount),
			Action:   "Check for outages, stock breaks or closures on that day.",
		}, true
	}
	return Alert{}, false
}

func peakHourInsight(in InsightInput, _ Thresholds, p *message.Printer) (Insight, bool) {
	peak, ok := PeakOf(in.Hourly)
	if !ok {
		return Insight{}, false
	}
	return Insight{
		Category:    CategoryOperations,
		Priority:    LevelMedium,
		Icon:        "clock",
		Title:       "Peak hour",
		Description: fmt.Sprintf("Most sales happen between %02d:00 and %02d:59.", peak.Hour, peak.Hour),
		Metric:      p.Sprintf("%d sales", peak.Count),
	}, true
}

func topChannelInsight(in InsightInput, _ Thresholds, p *message.Printer) (Insight, bool) {
	if len(in.Channels) == 0 {
		return Insight{}, false
	}
	best := in.Channels[0]
	return Insight{
		Category:    CategoryMarketing,
		Priority:    LevelMedium,
		Icon:        "megaphone",
		Title:       "Most profitable channel",
		Description: fmt.Sprintf("%s leads revenue in the period.", best.ChannelName),
		Metric:      p.Sprintf("%s revenue, %d sales", best.Revenue.StringFixed(2), best.Count),
	}, true
}

func topProductInsight(in InsightInput, _ Thresholds, p *message.Printer) (Insight, bool) {
	if len(in.TopProducts) == 0 {
		return Insight{}, false
	}
	top := in.TopProducts[0]
	return Insight{
		Category:    CategoryMarketing,
		Priority:    LevelLow,
		Icon:        "star",
		Title:       "Top product",
		Description: fmt.Sprintf("%s is the best seller of the period.", top.Name),
		Metric:      p.Sprintf("%d units", top.Quantity),
	}, true
}

func ticketUpInsight(in InsightInput, th Thresholds, p *message.Printer) (Insight, bool) {
	if in.Growth.TicketGrowth <= th.TicketUpPct {
		return Insight{}, false
	}
	return Insight{
		Category:    CategoryFinancial,
		Priority:    LevelLow,
		Icon:        "trending-up",
		Title:       "Ticket trending up",
		Description: "Customers are spending more per order than in the previous period.",
		Metric:      p.Sprintf("+%.1f%%", in.Growth.TicketGrowth),
	}, true
}

func ticketDownInsight(in InsightInput, th Thresholds, p *message.Printer) (Insight, bool) {
	if in.Growth.TicketGrowth >= th.TicketDownPct {
		return Insight{}, false
	}
	return Insight{
		Category:    CategoryFinancial,
		Priority:    LevelHigh,
		Icon:        "trending-down",
		Title:       "Ticket trending down",
		Description: "Customers are spending less per order than in the previous period.",
		Metric:      p.Sprintf("%.1f%%", in.Growth.TicketGrowth),
	}, true
}
