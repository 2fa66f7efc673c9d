package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/odyssey-erp/restaurant-analytics/internal/analytics"
	"github.com/odyssey-erp/restaurant-analytics/internal/analytics/export"
)

const dateLayout = "2006-01-02"

// DashboardLoader computes a dashboard snapshot.
type DashboardLoader interface {
	Load(ctx context.Context, spec analytics.FilterSpec) (analytics.DashboardSnapshot, error)
}

// ExportOptions selects the dashboard to export.
type ExportOptions struct {
	From       string
	To         string
	StoreIDs   []int64
	ChannelIDs []int64
	KPIOnly    bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExportCommand loads one dashboard and writes it as CSV. It returns the
// process exit code.
func ExportCommand(ctx context.Context, loader DashboardLoader, opts ExportOptions) int {
	spec, err := exportFilter(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "export: %v\n", err)
		return 2
	}
	snap, err := loader.Load(ctx, spec)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "export: load dashboard: %v\n", err)
		return 1
	}
	if len(snap.Degraded) > 0 {
		fmt.Fprintf(opts.Stderr, "export: degraded widgets: %v\n", snap.Degraded)
	}
	write := export.WriteDashboardCSV
	if opts.KPIOnly {
		write = export.WriteKPICSV
	}
	if err := write(opts.Stdout, snap); err != nil {
		fmt.Fprintf(opts.Stderr, "export: write csv: %v\n", err)
		return 1
	}
	return 0
}

func exportFilter(opts ExportOptions) (analytics.FilterSpec, error) {
	var from, to time.Time
	var err error
	if opts.From != "" {
		if from, err = time.Parse(dateLayout, opts.From); err != nil {
			return analytics.FilterSpec{}, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if opts.To != "" {
		if to, err = time.Parse(dateLayout, opts.To); err != nil {
			return analytics.FilterSpec{}, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return analytics.NewFilterSpec(from, to,
		analytics.WithStores(opts.StoreIDs...),
		analytics.WithChannels(opts.ChannelIDs...),
	)
}
