package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvfleet/app/plugins"
	"github.com/kilianp07/agvfleet/config"
	"github.com/kilianp07/agvfleet/core/metrics/usage"
	"github.com/kilianp07/agvfleet/pkg/export"
)

var (
	usageFormat string
	usageDays   int
)

var usageCmd = &cobra.Command{
	Use:   "usage <vehicle>...",
	Short: "Export daily usage records of vehicles",
	Long:  "Reads the configured usage store. Only persistent backends hold records outside a running service.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().StringVarP(&usageFormat, "format", "f", "csv", "output format: csv, json or html")
	usageCmd.Flags().IntVar(&usageDays, "days", 7, "number of days back from today")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	switch usageFormat {
	case "csv", "json", "html":
	default:
		return fmt.Errorf("unknown format %s", usageFormat)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := plugins.NewUsageStore(cfg.Usage)
	if err != nil {
		return err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}
	end := time.Now()
	start := end.AddDate(0, 0, -usageDays)
	var all []usage.Record
	for _, name := range args {
		recs, err := store.Query(name, start, end)
		if err != nil {
			return fmt.Errorf("query %s: %w", name, err)
		}
		all = append(all, recs...)
	}
	switch usageFormat {
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), all)
	case "html":
		return export.WriteHTML(cmd.OutOrStdout(), "Vehicle usage", all)
	}
	return export.WriteCSV(cmd.OutOrStdout(), all)
}
