package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bayneri/slareport/internal/explain"
	"github.com/bayneri/slareport/internal/report"
)

func newTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported service types",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := cfg.Registry()
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, explain.ServiceTypes(registry))
			return nil
		},
	}
}

func newExplainCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "explain downtime",
		Short:     "Explain how downtime minutes are decided",
		ValidArgs: []string{"downtime"},
		Args:      cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] != "downtime" {
				return fmt.Errorf("unknown explain topic %q", args[0])
			}
			fmt.Fprintln(os.Stdout, explain.Downtime())
			return nil
		},
	}
}

func newReportCommand() *cobra.Command {
	var inputs []string
	var outDir string
	cmd := &cobra.Command{
		Use:   "report --inputs a.json,b.json",
		Short: "Combine the summary.json of several runs into one report",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if len(inputs) == 0 {
				return errors.New("--inputs is required")
			}
			list, err := report.ReadJobs(inputs)
			if err != nil {
				return err
			}
			agg, err := report.Aggregate(list, inputs)
			if err != nil {
				return err
			}
			if err := report.WriteAggregateJSON(filepath.Join(outDir, "summary.json"), agg); err != nil {
				return err
			}
			if err := report.WriteAggregateMarkdown(filepath.Join(outDir, "summary.md"), agg); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Wrote report to %s\n", outDir)
			return reportOutcome(agg)
		},
	}
	cmd.Flags().StringSliceVar(&inputs, "inputs", nil, "comma-separated list of run summary.json files")
	cmd.Flags().StringVar(&outDir, "out", "out/report", "output directory")
	return cmd
}

// reportOutcome exits 2 only when an input job did not complete.
func reportOutcome(agg report.AggregateResult) error {
	for _, warning := range agg.Warnings {
		logrus.Warn(warning)
	}
	if len(agg.Errors) > 0 {
		return exitError{code: 2, err: fmt.Errorf("partial report: %d input(s) did not complete", len(agg.Errors))}
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version)
		},
	}
}
