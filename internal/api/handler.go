package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/spec"
)

const maxBodyBytes = 1 << 20

// JobService is the part of jobs.Runner the HTTP layer drives.
type JobService interface {
	Submit(ctx context.Context, req spec.ReportSpec) (jobs.Job, error)
	Get(ctx context.Context, id string) (jobs.Job, error)
	List(ctx context.Context, limit int) ([]jobs.Job, error)
}

type TemplateLister interface {
	Templates() []spec.ServiceTemplate
}

// Handler serves the job API, health and metrics endpoints.
type Handler struct {
	jobs      JobService
	templates TemplateLister
	logger    *logrus.Entry
	router    *mux.Router
}

// New registers all routes. A nil gatherer leaves /metrics unregistered.
func New(service JobService, templates TemplateLister, gatherer prometheus.Gatherer, logger *logrus.Entry) http.Handler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &Handler{jobs: service, templates: templates, logger: logger, router: mux.NewRouter()}

	h.router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if gatherer != nil {
		h.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	// Routes stay on the root router so a method mismatch reaches MethodNotAllowedHandler.
	h.router.HandleFunc("/api/v1/jobs", h.submitJob).Methods(http.MethodPost)
	h.router.HandleFunc("/api/v1/jobs", h.listJobs).Methods(http.MethodGet)
	h.router.HandleFunc("/api/v1/jobs/{id}", h.getJob).Methods(http.MethodGet)
	h.router.HandleFunc("/api/v1/service-types", h.serviceTypes).Methods(http.MethodGet)
	h.router.Use(h.logRequests)

	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submitJob accepts POST /api/v1/jobs and answers before evaluation starts.
func (h *Handler) submitJob(w http.ResponseWriter, r *http.Request) {
	var req spec.ReportSpec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	job, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	jsonResp(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: job.Status})
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, job)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	list, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	jsonResp(w, http.StatusOK, listResponse{Jobs: list})
}

func (h *Handler) serviceTypes(w http.ResponseWriter, _ *http.Request) {
	templates := h.templates.Templates()
	out := make([]ServiceTypeResponse, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, ServiceTypeResponse{
			Type:                 string(tpl.Type),
			Description:          tpl.Description,
			TotalMetric:          tpl.TotalMetric,
			ResourceFilter:       tpl.ResourceFilter,
			BadOutcomeMode:       tpl.BadOutcome.Mode(),
			ErrorRateThreshold:   tpl.ErrorRateThreshold,
			MinRequestsPerMinute: tpl.MinRequestsPerMinute,
		})
	}
	jsonResp(w, http.StatusOK, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var unavailable *jobs.JobStoreUnavailableError
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrJobNotFound):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.As(err, &unavailable):
		h.logger.WithError(err).Error("Job store unavailable.")
		jsonErr(w, http.StatusServiceUnavailable, "job store unavailable")
	default:
		h.logger.WithError(err).Error("Request failed.")
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(started).String(),
		}).Debug("Served request.")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
