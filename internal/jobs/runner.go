package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/spec"
)

// Limits bound what a single request may ask for.
type Limits struct {
	MaxConcurrency      int
	DefaultConcurrency  int
	DefaultLookbackDays int
	MaxLookbackDays     int
	ListLimit           int
	MaxListLimit        int
}

func DefaultLimits() Limits {
	return Limits{
		MaxConcurrency:      16,
		DefaultConcurrency:  4,
		DefaultLookbackDays: analyze.DefaultLookbackDays,
		MaxLookbackDays:     400,
		ListLimit:           20,
		MaxListLimit:        200,
	}
}

type RunnerConfig struct {
	Store   Store
	Source  analyze.Source
	Configs analyze.ConfigResolver
	Limits  Limits
	Metrics *Metrics
	Logger  *logrus.Entry
}

// Runner accepts report requests, persists them as processing jobs and
// evaluates them in the background.
type Runner struct {
	store   Store
	source  analyze.Source
	configs analyze.ConfigResolver
	limits  Limits
	metrics *Metrics
	logger  *logrus.Entry

	now   func() time.Time
	newID func() string
	wg    sync.WaitGroup
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil {
		return nil, errors.New("runner requires a job store")
	}
	if cfg.Source == nil {
		return nil, errors.New("runner requires a metric source")
	}
	if cfg.Configs == nil {
		cfg.Configs = spec.DefaultRegistry()
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		store:   cfg.Store,
		source:  cfg.Source,
		configs: cfg.Configs,
		limits:  cfg.Limits,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Submit validates req, records a processing job and starts evaluating it.
// The returned job is already persisted. Evaluation outlives ctx.
func (r *Runner) Submit(ctx context.Context, req spec.ReportSpec) (Job, error) {
	if err := req.Validate(); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req = r.limits.Normalize(req)
	now := r.now().UTC()
	job := Job{
		ID:        r.newID(),
		Status:    StatusProcessing,
		CreatedAt: now,
		Request:   req,
		Window:    analyze.LookbackWindow(req.LookbackDays, now),
		Labels:    req.Labels,
	}
	if err := r.store.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	r.metrics.jobSubmitted()

	logger := r.logger.WithField("job_id", job.ID)
	logger.WithFields(logrus.Fields{
		"targets":     req.ServiceCount(),
		"concurrency": req.Concurrency,
		"lookback":    req.LookbackDays,
	}).Info("Accepted report job.")

	r.wg.Add(1)
	go r.execute(context.WithoutCancel(ctx), job, logger)
	return job.Clone(), nil
}

func (r *Runner) Get(ctx context.Context, id string) (Job, error) {
	return r.store.Get(ctx, id)
}

// List returns the newest jobs. A non-positive limit uses the configured
// default; larger limits are clamped.
func (r *Runner) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = r.limits.ListLimit
	}
	if r.limits.MaxListLimit > 0 && limit > r.limits.MaxListLimit {
		limit = r.limits.MaxListLimit
	}
	return r.store.List(ctx, limit)
}

// Wait blocks until every submitted job has reached a terminal state.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Normalize fills in the default lookback and concurrency and clamps both to
// the configured maxima. Concurrency is always at least 1.
func (l Limits) Normalize(req spec.ReportSpec) spec.ReportSpec {
	if req.LookbackDays == 0 {
		req.LookbackDays = l.DefaultLookbackDays
	}
	if l.MaxLookbackDays > 0 && req.LookbackDays > l.MaxLookbackDays {
		req.LookbackDays = l.MaxLookbackDays
	}
	if req.Concurrency == 0 {
		req.Concurrency = l.DefaultConcurrency
	}
	if l.MaxConcurrency > 0 && req.Concurrency > l.MaxConcurrency {
		req.Concurrency = l.MaxConcurrency
	}
	if req.Concurrency < 1 {
		req.Concurrency = 1
	}
	return req
}

func (r *Runner) execute(ctx context.Context, job Job, logger *logrus.Entry) {
	defer r.wg.Done()
	started := time.Now()

	outcome := r.evaluate(ctx, job, logger)
	finished, err := r.store.Finish(ctx, job.ID, outcome)
	if err != nil && outcome.Status == StatusCompleted {
		logger.WithError(err).Error("Could not persist job result.")
		outcome = Outcome{
			Status:     StatusFailed,
			FinishedAt: r.now(),
			Error:      fmt.Sprintf("persist result: %v", err),
		}
		finished, err = r.store.Finish(ctx, job.ID, outcome)
	}
	if err != nil {
		logger.WithError(err).Error("Could not persist job failure, job stays processing.")
		r.metrics.jobFinished("unrecorded", time.Since(started))
		return
	}

	fields := logrus.Fields{"status": finished.Status, "duration": time.Since(started).String()}
	if finished.Summary != nil {
		fields["compliant"] = finished.Summary.Compliant
		fields["non_compliant"] = finished.Summary.NonCompliant
		fields["errored"] = finished.Summary.Errored
	}
	if finished.Error != "" {
		fields["error"] = finished.Error
	}
	logger.WithFields(fields).Info("Report job finished.")
	r.metrics.jobFinished(string(finished.Status), time.Since(started))
}

func (r *Runner) evaluate(ctx context.Context, job Job, logger *logrus.Entry) (outcome Outcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = Outcome{Status: StatusFailed, FinishedAt: r.now(), Error: fmt.Sprintf("panic: %v", p)}
		}
	}()
	result, err := analyze.Run(ctx, r.source, r.configs, analyze.Targets(job.Request), analyze.Options{
		Window:      job.Window,
		Concurrency: job.Request.Concurrency,
		Logger:      logger,
		Observer:    r.metrics,
	})
	if err != nil {
		return Outcome{Status: StatusFailed, FinishedAt: r.now(), Error: err.Error()}
	}
	return Outcome{Status: StatusCompleted, FinishedAt: r.now(), Result: result}
}
