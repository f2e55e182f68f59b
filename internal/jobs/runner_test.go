package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/spec"
)

type gatedSource struct {
	gate chan struct{}
	errs map[string]error
}

func (s *gatedSource) FetchAlignedSeries(_ context.Context, _ string, start, _ time.Time, filter string) (analyze.AlignedSeries, error) {
	if s.gate != nil {
		<-s.gate
	}
	for fragment, err := range s.errs {
		if strings.Contains(filter, fragment) {
			return nil, err
		}
	}
	// Success filters see every request, error filters see none.
	base := start.Unix()
	switch {
	case strings.Contains(filter, `status="ok"`):
		return analyze.AlignedSeries{base: 500, base + 60: 500}, nil
	case strings.Contains(filter, "metric.labels."):
		return analyze.AlignedSeries{}, nil
	default:
		return analyze.AlignedSeries{base: 500, base + 60: 500}, nil
	}
}

type panicConfigs struct{}

func (panicConfigs) ConfigFor(spec.Service) (spec.ServiceSLAConfig, error) {
	panic("boom")
}

// flakyStore fails the first finishes it is asked to write.
type flakyStore struct {
	*MemoryStore
	mu             sync.Mutex
	failCreate     bool
	failFinishes   int
	finishOutcomes []Status
}

func (s *flakyStore) Create(ctx context.Context, job Job) error {
	if s.failCreate {
		return &JobStoreUnavailableError{Op: "create " + job.ID, Err: errors.New("connection refused")}
	}
	return s.MemoryStore.Create(ctx, job)
}

func (s *flakyStore) Finish(ctx context.Context, id string, outcome Outcome) (Job, error) {
	s.mu.Lock()
	s.finishOutcomes = append(s.finishOutcomes, outcome.Status)
	fail := s.failFinishes > 0
	if fail {
		s.failFinishes--
	}
	s.mu.Unlock()
	if fail {
		return Job{}, &JobStoreUnavailableError{Op: "finish " + id, Err: errors.New("write timeout")}
	}
	return s.MemoryStore.Finish(ctx, id, outcome)
}

func newTestRunner(t *testing.T, store Store, source analyze.Source, configs analyze.ConfigResolver) (*Runner, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	r, err := NewRunner(RunnerConfig{Store: store, Source: source, Configs: configs, Metrics: metrics})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	clock := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	var mu sync.Mutex
	r.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	var n int
	r.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("job-%d", n)
	}
	return r, metrics
}

func lifecycleRequest() spec.ReportSpec {
	return spec.ReportSpec{
		Projects: []spec.Project{
			{ID: "shop-prod", Services: []spec.Service{
				{Name: "checkout", Type: "cloud_run_revision", Threshold: 99.9},
				{Name: "assets", Type: "gcs_bucket", Threshold: 99.5},
			}},
			{ID: "analytics", Services: []spec.Service{
				{Name: "warehouse", Type: "bigquery_project", Threshold: 99},
			}},
		},
		LookbackDays: 1,
		Concurrency:  2,
		Labels:       map[string]string{"team": "sre"},
	}
}

func TestRunnerLifecycle(t *testing.T) {
	source := &gatedSource{gate: make(chan struct{})}
	store := NewMemoryStore()
	r, metrics := newTestRunner(t, store, source, spec.DefaultRegistry())

	job, err := r.Submit(context.Background(), lifecycleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID != "job-1" || job.Status != StatusProcessing || job.FinishedAt != nil {
		t.Fatalf("unexpected submitted job: %+v", job)
	}
	if job.Window.Minutes() != 24*60 || job.Window.End.Second() != 0 {
		t.Fatalf("unexpected window: %+v", job.Window)
	}

	pending, err := r.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pending.Status != StatusProcessing || pending.Result != nil {
		t.Fatalf("expected visible processing job, got %+v", pending)
	}

	close(source.gate)
	r.Wait()

	done, err := r.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != StatusCompleted || done.FinishedAt == nil || done.Error != "" {
		t.Fatalf("expected completed job, got %+v", done)
	}
	var projects []string
	for _, p := range done.Result {
		projects = append(projects, p.ProjectID)
	}
	if diff := cmp.Diff([]string{"shop-prod", "analytics"}, projects); diff != "" {
		t.Fatalf("unexpected project order (-want +got):\n%s", diff)
	}
	if names := []string{done.Result[0].Services[0].ServiceName, done.Result[0].Services[1].ServiceName}; names[0] != "checkout" || names[1] != "assets" {
		t.Fatalf("unexpected service order: %v", names)
	}
	if diff := cmp.Diff(&analyze.Summary{Total: 3, Compliant: 3}, done.Summary); diff != "" {
		t.Fatalf("unexpected summary (-want +got):\n%s", diff)
	}
	if done.Labels["team"] != "sre" {
		t.Fatalf("expected labels to be recorded, got %v", done.Labels)
	}

	if got := testutil.ToFloat64(metrics.submitted); got != 1 {
		t.Fatalf("expected 1 submitted job, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.finished.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected 1 completed job, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.inFlight); got != 0 {
		t.Fatalf("expected no jobs in flight, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.targets.WithLabelValues("gcs_bucket", analyze.StatusOK)); got != 1 {
		t.Fatalf("expected 1 gcs_bucket evaluation, got %v", got)
	}
}

func TestRunnerIsolatesTargetFailure(t *testing.T) {
	source := &gatedSource{errs: map[string]error{`bucket_name="assets"`: errors.New("quota exceeded")}}
	r, _ := newTestRunner(t, NewMemoryStore(), source, spec.DefaultRegistry())

	job, err := r.Submit(context.Background(), lifecycleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r.Wait()
	done, err := r.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed job despite target failure, got %s (%s)", done.Status, done.Error)
	}
	assets := done.Result[0].Services[1]
	if assets.Status != analyze.StatusError || !strings.Contains(assets.Error, "quota exceeded") {
		t.Fatalf("expected assets error entry, got %+v", assets)
	}
	if done.Summary.Errored != 1 || done.Summary.Compliant != 2 {
		t.Fatalf("unexpected summary: %+v", done.Summary)
	}
}

func TestRunnerFailsJobOnPanic(t *testing.T) {
	r, metrics := newTestRunner(t, NewMemoryStore(), &gatedSource{}, panicConfigs{})
	job, err := r.Submit(context.Background(), lifecycleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r.Wait()
	done, _ := r.Get(context.Background(), job.ID)
	if done.Status != StatusFailed || !strings.Contains(done.Error, "panic: boom") {
		t.Fatalf("expected failed job, got %+v", done)
	}
	if done.Result != nil || done.Summary != nil || done.FinishedAt == nil {
		t.Fatalf("failed job must carry only the error: %+v", done)
	}
	if got := testutil.ToFloat64(metrics.finished.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed job, got %v", got)
	}
}

func TestRunnerFailsJobWhenResultCannotBePersisted(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failFinishes: 1}
	r, _ := newTestRunner(t, store, &gatedSource{}, spec.DefaultRegistry())
	job, err := r.Submit(context.Background(), lifecycleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r.Wait()
	done, _ := r.Get(context.Background(), job.ID)
	if done.Status != StatusFailed || !strings.Contains(done.Error, "persist result") || !strings.Contains(done.Error, "write timeout") {
		t.Fatalf("expected persistence failure, got %+v", done)
	}
	if diff := cmp.Diff([]Status{StatusCompleted, StatusFailed}, store.finishOutcomes); diff != "" {
		t.Fatalf("unexpected finish attempts (-want +got):\n%s", diff)
	}
}

func TestRunnerSubmitStoreUnavailable(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failCreate: true}
	r, _ := newTestRunner(t, store, &gatedSource{}, spec.DefaultRegistry())
	_, err := r.Submit(context.Background(), lifecycleRequest())
	var unavailable *JobStoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected JobStoreUnavailableError, got %v", err)
	}
	jobs, _ := r.List(context.Background(), 0)
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
}

func TestRunnerRejectsInvalidRequest(t *testing.T) {
	r, _ := newTestRunner(t, NewMemoryStore(), &gatedSource{}, spec.DefaultRegistry())
	_, err := r.Submit(context.Background(), spec.ReportSpec{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRunnerNormalizesRequest(t *testing.T) {
	r, _ := newTestRunner(t, NewMemoryStore(), &gatedSource{}, spec.DefaultRegistry())
	req := lifecycleRequest()
	req.LookbackDays = 0
	req.Concurrency = 10000
	job, err := r.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r.Wait()
	limits := DefaultLimits()
	if job.Request.LookbackDays != limits.DefaultLookbackDays {
		t.Fatalf("expected default lookback, got %d", job.Request.LookbackDays)
	}
	if job.Request.Concurrency != limits.MaxConcurrency {
		t.Fatalf("expected concurrency capped at %d, got %d", limits.MaxConcurrency, job.Request.Concurrency)
	}

	req.LookbackDays = 100000
	req.Concurrency = 0
	job, err = r.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r.Wait()
	if job.Request.LookbackDays != limits.MaxLookbackDays || job.Request.Concurrency != limits.DefaultConcurrency {
		t.Fatalf("unexpected normalized request: %+v", job.Request)
	}
}

func TestLimitsNormalize(t *testing.T) {
	limits := Limits{MaxConcurrency: 8, DefaultConcurrency: 4, DefaultLookbackDays: 30, MaxLookbackDays: 90}
	for _, tc := range []struct {
		name                      string
		lookback, concurrency     int
		wantLookback, wantWorkers int
	}{
		{name: "defaults", wantLookback: 30, wantWorkers: 4},
		{name: "within limits", lookback: 7, concurrency: 2, wantLookback: 7, wantWorkers: 2},
		{name: "capped", lookback: 365, concurrency: 64, wantLookback: 90, wantWorkers: 8},
		{name: "negative concurrency", lookback: 1, concurrency: -3, wantLookback: 1, wantWorkers: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := limits.Normalize(spec.ReportSpec{LookbackDays: tc.lookback, Concurrency: tc.concurrency})
			if got.LookbackDays != tc.wantLookback || got.Concurrency != tc.wantWorkers {
				t.Fatalf("got lookback %d concurrency %d, want %d and %d", got.LookbackDays, got.Concurrency, tc.wantLookback, tc.wantWorkers)
			}
		})
	}
}

func TestRunnerListNewestFirst(t *testing.T) {
	r, _ := newTestRunner(t, NewMemoryStore(), &gatedSource{}, spec.DefaultRegistry())
	for i := 0; i < 3; i++ {
		if _, err := r.Submit(context.Background(), lifecycleRequest()); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	r.Wait()
	jobs, err := r.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	if diff := cmp.Diff([]string{"job-3", "job-2"}, ids); diff != "" {
		t.Fatalf("unexpected list (-want +got):\n%s", diff)
	}
}
