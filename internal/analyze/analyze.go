package analyze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bayneri/slareport/internal/spec"
)

// Source returns the 60-second aligned sums of a filter over [start, end).
// A filter with no data yet yields an empty series or ErrMetricNotFound.
type Source interface {
	FetchAlignedSeries(ctx context.Context, project string, start, end time.Time, filter string) (AlignedSeries, error)
}

type ConfigResolver interface {
	ConfigFor(svc spec.Service) (spec.ServiceSLAConfig, error)
}

// Observer is told about every finished target evaluation.
type Observer interface {
	ObserveTarget(serviceType, status string, elapsed time.Duration)
}

type Options struct {
	Window      Window
	Concurrency int
	Logger      *logrus.Entry
	Observer    Observer
}

// Run evaluates every target on a worker pool bounded by opts.Concurrency and
// groups the entries by project, keeping request order for both projects and
// services. A failing target is reported in its own entry; Run itself fails
// only when an evaluation panics.
func Run(ctx context.Context, source Source, configs ConfigResolver, targets []Target, opts Options) ([]ProjectReport, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	entries := make([]ServiceReportEntry, len(targets))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, target := range targets {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("evaluate %s/%s: panic: %v", target.ProjectID, target.Service.Name, r)
				}
			}()
			entries[i] = evaluateTarget(ctx, source, configs, target, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groupByProject(targets, entries), nil
}

func evaluateTarget(ctx context.Context, source Source, configs ConfigResolver, target Target, opts Options) ServiceReportEntry {
	started := time.Now()
	svc := target.Service
	entry := ServiceReportEntry{
		ServiceName: svc.Name,
		ServiceType: svc.Type,
		Threshold:   svc.Threshold,
	}
	logger := opts.Logger.WithFields(logrus.Fields{
		"project":      target.ProjectID,
		"service":      svc.Name,
		"service_type": svc.Type,
	})

	result, err := evaluate(ctx, source, configs, target, opts.Window, logger)
	if err != nil {
		entry.Status = StatusError
		entry.Error = err.Error()
		logger.WithError(err).Warn("Could not evaluate target.")
	} else {
		entry.Result = &result
		entry.Compliant = result.UptimePct >= svc.Threshold
		entry.Status = StatusOK
		if !entry.Compliant {
			entry.Status = StatusBreach
		}
		if svc.Threshold < 100 {
			_, _, consumed, _ := ComputeBudget(svc.Threshold/100, result.UptimePct/100)
			consumed = round4(consumed)
			entry.BudgetConsumedPct = &consumed
		}
		logger.WithFields(logrus.Fields{
			"uptime_pct":       result.UptimePct,
			"downtime_minutes": result.DowntimeMinutes,
		}).Debug("Evaluated target.")
	}

	if opts.Observer != nil {
		opts.Observer.ObserveTarget(svc.Type, entry.Status, time.Since(started))
	}
	return entry
}

func evaluate(ctx context.Context, source Source, configs ConfigResolver, target Target, window Window, logger *logrus.Entry) (SLAResult, error) {
	cfg, err := configs.ConfigFor(target.Service)
	if err != nil {
		return SLAResult{}, err
	}
	if window.Minutes() <= 0 {
		return SLAResult{}, fmt.Errorf("%w: %s to %s", ErrDegenerateWindow, window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
	}

	total, err := fetch(ctx, source, target.ProjectID, window, cfg.TotalFilter(), logger)
	if err != nil {
		return SLAResult{}, fmt.Errorf("fetch total series: %w", err)
	}
	observed, err := fetch(ctx, source, target.ProjectID, window, cfg.BadFilter(), logger)
	if err != nil {
		return SLAResult{}, fmt.Errorf("fetch %s series: %w", cfg.BadOutcome.Mode(), err)
	}
	return Evaluate(total, observed, cfg, window.Start.Unix(), window.End.Unix())
}

func fetch(ctx context.Context, source Source, project string, window Window, filter string, logger *logrus.Entry) (AlignedSeries, error) {
	series, err := source.FetchAlignedSeries(ctx, project, window.Start, window.End, filter)
	if errors.Is(err, ErrMetricNotFound) {
		logger.WithField("filter", filter).Debug("No data for filter, treating as empty.")
		return AlignedSeries{}, nil
	}
	if err != nil {
		var queryErr *MetricQueryError
		if !errors.As(err, &queryErr) {
			err = &MetricQueryError{Project: project, Filter: filter, Err: err}
		}
		return nil, err
	}
	return series, nil
}

func groupByProject(targets []Target, entries []ServiceReportEntry) []ProjectReport {
	var out []ProjectReport
	index := map[string]int{}
	for i, target := range targets {
		pos, ok := index[target.ProjectID]
		if !ok {
			pos = len(out)
			index[target.ProjectID] = pos
			out = append(out, ProjectReport{ProjectID: target.ProjectID})
		}
		out[pos].Services = append(out[pos].Services, entries[i])
	}
	return out
}
