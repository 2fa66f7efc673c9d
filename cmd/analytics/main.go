package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/restaurant-analytics/internal/app"
)

var version = "dev"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := newRootCmd().Execute(); err != nil {
		slog.Default().Error("restaurant-analytics", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "restaurant-analytics",
		Short:         "Sales analytics API for restaurant chains",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the analytics HTTP API",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the service version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
		newJobsCmd(),
		newExportCmd(),
	)
	return root
}
