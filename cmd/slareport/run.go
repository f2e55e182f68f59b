package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/report"
	"github.com/bayneri/slareport/internal/spec"
)

type runOptions struct {
	file          string
	lookback      string
	concurrency   int
	labels        string
	out           string
	timezone      string
	explain       bool
	failOnPartial bool
	failOnBreach  bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run -f request.yaml",
		Short: "Evaluate a report request once and write the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReportJob(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "path to the report request")
	flags.StringVar(&opts.lookback, "lookback", "", "lookback in days, e.g. 30 or 30d (overrides lookback_days)")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "targets evaluated at once (overrides concurrency)")
	flags.StringVar(&opts.labels, "labels", "", "extra labels in key=value,key=value format")
	flags.StringVar(&opts.out, "out", "", "output directory for summary.json, summary.md and errors.md")
	flags.StringVar(&opts.timezone, "timezone", "UTC", "IANA timezone for reports")
	flags.BoolVar(&opts.explain, "explain", false, "include the downtime formula in summary.md")
	flags.BoolVar(&opts.failOnPartial, "fail-on-partial", false, "exit 2 if any target cannot be evaluated")
	flags.BoolVar(&opts.failOnBreach, "fail-on-breach", false, "exit 3 if any target is below its threshold")
	return cmd
}

func loadRequest(file, lookback string, concurrency int, labels string) (spec.ReportSpec, error) {
	if strings.TrimSpace(file) == "" {
		return spec.ReportSpec{}, errors.New("-f is required")
	}
	req, err := spec.Load(file)
	if err != nil {
		return spec.ReportSpec{}, err
	}
	days, err := analyze.ParseLookbackDays(lookback)
	if err != nil {
		return spec.ReportSpec{}, err
	}
	if days > 0 {
		req.LookbackDays = days
	}
	if concurrency > 0 {
		req.Concurrency = concurrency
	}
	extra, err := spec.ParseLabels(labels)
	if err != nil {
		return spec.ReportSpec{}, err
	}
	if len(extra) > 0 && req.Labels == nil {
		req.Labels = map[string]string{}
	}
	for k, v := range extra {
		req.Labels[k] = v
	}
	if err := req.Validate(); err != nil {
		return spec.ReportSpec{}, err
	}
	return req, nil
}

func runReportJob(ctx context.Context, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	req, err := loadRequest(opts.file, opts.lookback, opts.concurrency, opts.labels)
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	runner, err := jobs.NewRunner(jobs.RunnerConfig{
		Store:   store,
		Source:  source,
		Configs: registry,
		Limits:  cfg.Jobs.Limits(),
		Logger:  logrus.WithField("component", "runner"),
	})
	if err != nil {
		return err
	}
	submitted, err := runner.Submit(ctx, req)
	if err != nil {
		return err
	}
	runner.Wait()
	job, err := runner.Get(ctx, submitted.ID)
	if err != nil {
		return err
	}
	if job.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
	}

	if err := report.WriteTable(os.Stdout, job); err != nil {
		return err
	}
	errs := report.Errors(job)
	if opts.out != "" {
		if err := writeJobOutputs(opts.out, job, errs, report.Options{Explain: opts.explain, Timezone: loc}); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nWrote %s\n", opts.out)
	}
	if opts.failOnBreach && report.Status(job) == analyze.StatusBreach {
		return exitError{code: 3, err: fmt.Errorf("%d target(s) below threshold", analyze.Summarize(job.Result).NonCompliant)}
	}
	if opts.failOnPartial && len(errs) > 0 {
		return exitError{code: 2, err: fmt.Errorf("%d target(s) could not be evaluated", len(errs))}
	}
	return nil
}

func writeJobOutputs(dir string, job jobs.Job, errs []string, opts report.Options) error {
	if err := report.WriteSummaryJSON(filepath.Join(dir, "summary.json"), job); err != nil {
		return err
	}
	if err := report.WriteMarkdownSummary(filepath.Join(dir, "summary.md"), job, opts); err != nil {
		return err
	}
	if len(errs) > 0 {
		if err := report.WriteErrorsMarkdown(filepath.Join(dir, "errors.md"), errs); err != nil {
			return err
		}
	}
	return nil
}
