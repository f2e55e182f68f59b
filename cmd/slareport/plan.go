package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/config"
	"github.com/bayneri/slareport/internal/planner"
	"github.com/bayneri/slareport/internal/spec"
)

func newPlanCommand() *cobra.Command {
	var file, lookback, labels string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "plan -f request.yaml",
		Short: "Print the queries a report request would run",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			req, err := loadRequest(file, lookback, concurrency, labels)
			if err != nil {
				return err
			}
			plan, err := buildPlan(cfg, req, time.Now())
			if err != nil {
				return err
			}
			planner.Render(os.Stdout, plan)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "path to the report request")
	flags.StringVar(&lookback, "lookback", "", "lookback in days (overrides lookback_days)")
	flags.IntVar(&concurrency, "concurrency", 0, "targets evaluated at once (overrides concurrency)")
	flags.StringVar(&labels, "labels", "", "extra labels in key=value,key=value format")
	return cmd
}

// buildPlan applies the same limits a submitted job gets, so the plan shows
// the window and concurrency run would use.
func buildPlan(cfg *config.Config, req spec.ReportSpec, now time.Time) (planner.Plan, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return planner.Plan{}, err
	}
	req = cfg.Jobs.Limits().Normalize(req)
	return planner.Build(req, registry, planner.Options{
		Window: analyze.LookbackWindow(req.LookbackDays, now),
	}), nil
}
