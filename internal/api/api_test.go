package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/api"
	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/spec"
)

// --- test helpers -----------------------------------------------------------

type steadySource struct{}

func (steadySource) FetchAlignedSeries(_ context.Context, _ string, start, _ time.Time, filter string) (analyze.AlignedSeries, error) {
	if strings.Contains(filter, "metric.labels.") {
		return analyze.AlignedSeries{}, nil
	}
	return analyze.AlignedSeries{start.Unix(): 1000}, nil
}

type downStore struct{ *jobs.MemoryStore }

func (downStore) Create(context.Context, jobs.Job) error {
	return &jobs.JobStoreUnavailableError{Op: "create", Err: errors.New("bucket unreachable")}
}

func newServer(t *testing.T, store jobs.Store) (http.Handler, *jobs.Runner) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(logger)

	reg := prometheus.NewRegistry()
	runner, err := jobs.NewRunner(jobs.RunnerConfig{
		Store:   store,
		Source:  steadySource{},
		Configs: spec.DefaultRegistry(),
		Metrics: jobs.NewMetrics(reg),
		Logger:  entry,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return api.New(runner, spec.DefaultRegistry(), reg, entry), runner
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

const validBody = `{
  "projects": [
    {"id": "shop-prod", "services": [
      {"name": "checkout", "type": "cloud_run_revision", "threshold": 99.9},
      {"name": "assets", "type": "gcs_bucket", "threshold": 99.5}
    ]},
    {"id": "analytics", "services": [
      {"name": "warehouse", "type": "bigquery_project", "threshold": 99}
    ]}
  ],
  "lookback_days": 1,
  "concurrency": 2
}`

// --- tests ------------------------------------------------------------------

func TestSubmitAndFetchJob(t *testing.T) {
	h, runner := newServer(t, jobs.NewMemoryStore())

	rr := do(t, h, http.MethodPost, "/api/v1/jobs", validBody)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body: %s)", rr.Code, rr.Body.String())
	}
	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	decode(t, rr, &accepted)
	if accepted.JobID == "" || accepted.Status != "processing" {
		t.Fatalf("unexpected submit response: %+v", accepted)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/jobs/"+accepted.JobID {
		t.Fatalf("unexpected Location %q", loc)
	}

	runner.Wait()
	rr = do(t, h, http.MethodGet, "/api/v1/jobs/"+accepted.JobID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var job jobs.Job
	decode(t, rr, &job)
	if job.Status != jobs.StatusCompleted || job.FinishedAt == nil {
		t.Fatalf("expected completed job, got %+v", job)
	}
	if len(job.Result) != 2 || job.Result[0].ProjectID != "shop-prod" || job.Result[1].ProjectID != "analytics" {
		t.Fatalf("unexpected result grouping: %+v", job.Result)
	}
	if job.Request.Projects[0].Services[1].Name != "assets" {
		t.Fatalf("request_spec not echoed: %+v", job.Request)
	}
}

func TestGetUnknownJob(t *testing.T) {
	h, _ := newServer(t, jobs.NewMemoryStore())
	rr := do(t, h, http.MethodGet, "/api/v1/jobs/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	h, _ := newServer(t, jobs.NewMemoryStore())
	cases := map[string]string{
		"malformed":     `{"projects": [`,
		"unknown-field": `{"projects": [], "colour": "blue"}`,
		"invalid":       `{"projects": []}`,
		"bad-threshold": `{"projects": [{"id": "p", "services": [{"name": "a", "type": "gcs_bucket", "threshold": 150}]}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/jobs", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400 (body: %s)", rr.Code, rr.Body.String())
			}
			var resp struct {
				Error string `json:"error"`
			}
			decode(t, rr, &resp)
			if resp.Error == "" {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestSubmitStoreUnavailable(t *testing.T) {
	h, _ := newServer(t, downStore{jobs.NewMemoryStore()})
	rr := do(t, h, http.MethodPost, "/api/v1/jobs", validBody)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rr.Code)
	}
}

func TestListJobs(t *testing.T) {
	h, runner := newServer(t, jobs.NewMemoryStore())
	for i := 0; i < 3; i++ {
		if rr := do(t, h, http.MethodPost, "/api/v1/jobs", validBody); rr.Code != http.StatusAccepted {
			t.Fatalf("submit: got %d", rr.Code)
		}
	}
	runner.Wait()

	rr := do(t, h, http.MethodGet, "/api/v1/jobs?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	decode(t, rr, &resp)
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(resp.Jobs))
	}
	if resp.Jobs[0].CreatedAt.Before(resp.Jobs[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	if rr := do(t, h, http.MethodGet, "/api/v1/jobs?limit=zero", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

func TestListJobsEmpty(t *testing.T) {
	h, _ := newServer(t, jobs.NewMemoryStore())
	rr := do(t, h, http.MethodGet, "/api/v1/jobs", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"jobs":[]`) {
		t.Fatalf("unexpected response %d: %s", rr.Code, rr.Body.String())
	}
}

func TestServiceTypes(t *testing.T) {
	h, _ := newServer(t, jobs.NewMemoryStore())
	rr := do(t, h, http.MethodGet, "/api/v1/service-types", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var types []api.ServiceTypeResponse
	decode(t, rr, &types)
	if len(types) != 5 {
		t.Fatalf("expected 5 service types, got %d", len(types))
	}
	if types[0].Type != "bigquery_project" || types[0].BadOutcomeMode != "derived" {
		t.Fatalf("unexpected first type: %+v", types[0])
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, runner := newServer(t, jobs.NewMemoryStore())
	if rr := do(t, h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz: got %d", rr.Code)
	}
	do(t, h, http.MethodPost, "/api/v1/jobs", validBody)
	runner.Wait()

	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"slareport_jobs_submitted_total 1", `slareport_jobs_finished_total{status="completed"} 1`, "slareport_target_evaluations_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %q", name)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newServer(t, jobs.NewMemoryStore())
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodDelete, "/api/v1/jobs"},
		{http.MethodPut, "/api/v1/jobs/abc"},
		{http.MethodPost, "/api/v1/service-types"},
		{http.MethodPost, "/healthz"},
	} {
		rr := do(t, h, tc.method, tc.path, "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: got %d, want 405", tc.method, tc.path, rr.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] == "" {
			t.Fatalf("%s %s: expected JSON error body, got %q", tc.method, tc.path, rr.Body.String())
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newServer(t, jobs.NewMemoryStore())
	rr := do(t, h, http.MethodGet, "/api/v2/jobs", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
}
