package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/restaurant-analytics/cmd/analytics/cli"
	"github.com/odyssey-erp/restaurant-analytics/internal/app"
	"github.com/odyssey-erp/restaurant-analytics/internal/observability"
)

func newJobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	withJobs := func(fn func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c := cli.NewJobsCLI(cfg.RedisAddr, cfg.AnomalyWindowDays, cfg.AnomalyZThreshold)
			defer func() { _ = c.Close() }()
			return fn(cmd, c, args)
		}
	}

	trigger := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue analytics:cache_warmup or analytics:anomaly_scan",
		Args:  cobra.ExactArgs(1),
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print queue statistics as JSON",
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, _ []string) error {
			s, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(s)
		}),
	}
	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, _ []string) error {
			tasks, err := c.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		}),
	}
	scheduled.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	jobsCmd.AddCommand(trigger, stats, scheduled)
	return jobsCmd
}

func newExportCmd() *cobra.Command {
	var opts cli.ExportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a dashboard as CSV to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg)
			core, err := app.BuildAnalytics(cmd.Context(), cfg, logger, observability.NewMetrics().Registerer())
			if err != nil {
				return fmt.Errorf("build analytics: %w", err)
			}
			opts.Stdout = cmd.OutOrStdout()
			opts.Stderr = cmd.ErrOrStderr()
			code := cli.ExportCommand(cmd.Context(), core.Dashboard, opts)
			core.Close()
			if code != 0 {
				logger.Error("export failed", slog.Int("exit_code", code))
				os.Exit(code)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.From, "from", "", "first day, YYYY-MM-DD")
	flags.StringVar(&opts.To, "to", "", "last day, YYYY-MM-DD")
	flags.Int64SliceVar(&opts.StoreIDs, "store", nil, "store id, repeatable")
	flags.Int64SliceVar(&opts.ChannelIDs, "channel", nil, "channel id, repeatable")
	flags.BoolVar(&opts.KPIOnly, "kpi-only", false, "write only the KPI section")
	return cmd
}
