package spec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type ServiceType string

const (
	CloudRunRevision ServiceType = "cloud_run_revision"
	GCSBucket        ServiceType = "gcs_bucket"
	BigQueryProject  ServiceType = "bigquery_project"
	HTTPSLBRule      ServiceType = "https_lb_rule"
	CloudFunction    ServiceType = "cloud_function"
)

const DefaultErrorRateThreshold = 0.05

// namePlaceholder marks where a resource filter takes the quoted service name.
const namePlaceholder = "{name}"

// BadOutcome derives the failed-request count of a minute bucket.
type BadOutcome interface {
	Mode() string
	// Filter narrows the total-traffic filter to the series the strategy reads.
	Filter(totalFilter string) string
	// Bad returns the failed count given the bucket total and the value read
	// through Filter for the same bucket.
	Bad(total, observed float64) float64
}

// DirectErrorFilter reads failed requests from an error-labelled series.
type DirectErrorFilter struct {
	Expr string
}

func (DirectErrorFilter) Mode() string { return "direct" }

func (d DirectErrorFilter) Filter(totalFilter string) string {
	return joinFilter(totalFilter, d.Expr)
}

func (DirectErrorFilter) Bad(_, errorCount float64) float64 {
	return errorCount
}

// DerivedFromSuccess reads successful requests and treats the rest of the
// bucket total as failed. Success counts come from an independent query and
// may transiently exceed the total, so the result is clamped at zero.
type DerivedFromSuccess struct {
	Expr string
}

func (DerivedFromSuccess) Mode() string { return "derived" }

func (d DerivedFromSuccess) Filter(totalFilter string) string {
	return joinFilter(totalFilter, d.Expr)
}

func (DerivedFromSuccess) Bad(total, success float64) float64 {
	if success >= total {
		return 0
	}
	return total - success
}

type ServiceTemplate struct {
	Type                 ServiceType
	Description          string
	TotalMetric          string
	ResourceFilter       string
	BadOutcome           BadOutcome
	ErrorRateThreshold   float64
	MinRequestsPerMinute int64
}

// ServiceSLAConfig is a template bound to one named service.
type ServiceSLAConfig struct {
	ServiceType          ServiceType
	ServiceName          string
	TotalMetric          string
	ResourceFilter       string
	BadOutcome           BadOutcome
	ErrorRateThreshold   float64
	MinRequestsPerMinute int64
}

func (c ServiceSLAConfig) TotalFilter() string {
	return joinFilter(fmt.Sprintf("metric.type=%q", c.TotalMetric), c.ResourceFilter)
}

func (c ServiceSLAConfig) BadFilter() string {
	return c.BadOutcome.Filter(c.TotalFilter())
}

type UnknownServiceTypeError struct {
	Type  string
	Known []string
}

func (e *UnknownServiceTypeError) Error() string {
	return fmt.Sprintf("unknown service type %q (known: %s)", e.Type, strings.Join(e.Known, ", "))
}

// Override replaces registry defaults for one service type.
type Override struct {
	TotalMetric          string   `yaml:"total_metric"`
	ErrorRateThreshold   *float64 `yaml:"error_rate_threshold"`
	MinRequestsPerMinute *int64   `yaml:"min_requests_per_minute"`
}

var defaultTemplates = []ServiceTemplate{
	{
		Type:                 CloudRunRevision,
		Description:          "Cloud Run request count, 5xx responses are failures",
		TotalMetric:          "run.googleapis.com/request_count",
		ResourceFilter:       `resource.type="cloud_run_revision" AND resource.labels.service_name={name}`,
		BadOutcome:           DirectErrorFilter{Expr: `metric.labels.response_code_class="5xx"`},
		ErrorRateThreshold:   DefaultErrorRateThreshold,
		MinRequestsPerMinute: 100,
	},
	{
		Type:                 GCSBucket,
		Description:          "Cloud Storage API request count, 5xx response codes are failures",
		TotalMetric:          "storage.googleapis.com/api/request_count",
		ResourceFilter:       `resource.type="gcs_bucket" AND resource.labels.bucket_name={name}`,
		BadOutcome:           DirectErrorFilter{Expr: `metric.labels.response_code=starts_with("5")`},
		ErrorRateThreshold:   DefaultErrorRateThreshold,
		MinRequestsPerMinute: 1,
	},
	{
		Type:                 BigQueryProject,
		Description:          "BigQuery query count, queries without an ok statement status are failures",
		TotalMetric:          "bigquery.googleapis.com/query/count",
		ResourceFilter:       `resource.type="bigquery_project"`,
		BadOutcome:           DerivedFromSuccess{Expr: `metric.labels.statement_status="ok"`},
		ErrorRateThreshold:   DefaultErrorRateThreshold,
		MinRequestsPerMinute: 20,
	},
	{
		Type:                 HTTPSLBRule,
		Description:          "HTTPS load balancer request count, 5xx responses are failures",
		TotalMetric:          "loadbalancing.googleapis.com/https/request_count",
		ResourceFilter:       `resource.type="https_lb_rule" AND resource.labels.forwarding_rule_name={name}`,
		BadOutcome:           DirectErrorFilter{Expr: `metric.labels.response_code_class=500`},
		ErrorRateThreshold:   DefaultErrorRateThreshold,
		MinRequestsPerMinute: 100,
	},
	{
		Type:                 CloudFunction,
		Description:          "Cloud Functions execution count, executions without an ok status are failures",
		TotalMetric:          "cloudfunctions.googleapis.com/function/execution_count",
		ResourceFilter:       `resource.type="cloud_function" AND resource.labels.function_name={name}`,
		BadOutcome:           DerivedFromSuccess{Expr: `metric.labels.status="ok"`},
		ErrorRateThreshold:   DefaultErrorRateThreshold,
		MinRequestsPerMinute: 1,
	},
}

// Registry maps service types to their templates. It is immutable once built.
type Registry struct {
	templates map[ServiceType]ServiceTemplate
}

func DefaultRegistry() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

func NewRegistry(overrides map[string]Override) (*Registry, error) {
	templates := make(map[ServiceType]ServiceTemplate, len(defaultTemplates))
	for _, tpl := range defaultTemplates {
		templates[tpl.Type] = tpl
	}
	r := &Registry{templates: templates}

	var errs []string
	for name, override := range overrides {
		tpl, ok := templates[ServiceType(name)]
		if !ok {
			errs = append(errs, (&UnknownServiceTypeError{Type: name, Known: r.Types()}).Error())
			continue
		}
		if override.TotalMetric != "" {
			tpl.TotalMetric = override.TotalMetric
		}
		if override.ErrorRateThreshold != nil {
			if *override.ErrorRateThreshold < 0 || *override.ErrorRateThreshold > 1 {
				errs = append(errs, fmt.Sprintf("services.%s.error_rate_threshold must be between 0 and 1", name))
			}
			tpl.ErrorRateThreshold = *override.ErrorRateThreshold
		}
		if override.MinRequestsPerMinute != nil {
			if *override.MinRequestsPerMinute < 0 {
				errs = append(errs, fmt.Sprintf("services.%s.min_requests_per_minute must not be negative", name))
			}
			tpl.MinRequestsPerMinute = *override.MinRequestsPerMinute
		}
		templates[tpl.Type] = tpl
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, errors.New(strings.Join(errs, "; "))
	}
	return r, nil
}

func (r *Registry) Template(serviceType string) (ServiceTemplate, error) {
	if tpl, ok := r.templates[ServiceType(serviceType)]; ok {
		return tpl, nil
	}
	return ServiceTemplate{}, &UnknownServiceTypeError{Type: serviceType, Known: r.Types()}
}

// ConfigFor binds the template of svc.Type to the service name and applies
// the per-service overrides carried by the request.
func (r *Registry) ConfigFor(svc Service) (ServiceSLAConfig, error) {
	tpl, err := r.Template(svc.Type)
	if err != nil {
		return ServiceSLAConfig{}, err
	}
	cfg := ServiceSLAConfig{
		ServiceType:          tpl.Type,
		ServiceName:          svc.Name,
		TotalMetric:          tpl.TotalMetric,
		ResourceFilter:       strings.ReplaceAll(tpl.ResourceFilter, namePlaceholder, strconv.Quote(svc.Name)),
		BadOutcome:           tpl.BadOutcome,
		ErrorRateThreshold:   tpl.ErrorRateThreshold,
		MinRequestsPerMinute: tpl.MinRequestsPerMinute,
	}
	if svc.MetricPath != "" {
		cfg.TotalMetric = svc.MetricPath
	}
	if svc.ErrorRateThreshold != nil {
		cfg.ErrorRateThreshold = *svc.ErrorRateThreshold
	}
	if svc.MinRequestsPerMinute != nil {
		cfg.MinRequestsPerMinute = *svc.MinRequestsPerMinute
	}
	return cfg, nil
}

func (r *Registry) Templates() []ServiceTemplate {
	out := make([]ServiceTemplate, 0, len(r.templates))
	for _, tpl := range r.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (r *Registry) Types() []string {
	var keys []string
	for k := range r.templates {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

func joinFilter(base, extra string) string {
	if strings.TrimSpace(extra) == "" {
		return base
	}
	return fmt.Sprintf("%s AND %s", base, extra)
}
