package spec

import (
	"errors"
	"fmt"
	"strings"
)

// ReportSpec is a compliance report request: the projects and services to
// evaluate, how far back to look, and how many targets to evaluate at once.
type ReportSpec struct {
	Projects     []Project         `yaml:"projects" json:"projects"`
	LookbackDays int               `yaml:"lookback_days" json:"lookback_days"`
	Concurrency  int               `yaml:"concurrency" json:"concurrency"`
	Labels       map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

type Project struct {
	ID       string    `yaml:"id" json:"id"`
	Services []Service `yaml:"services" json:"services"`
}

// Service is one evaluation target. Threshold is the compliance objective as a
// percentage (0-100); the optional fields override the registry defaults for
// this service only.
type Service struct {
	Name                 string   `yaml:"name" json:"name"`
	Type                 string   `yaml:"type" json:"type"`
	Threshold            float64  `yaml:"threshold" json:"threshold"`
	MetricPath           string   `yaml:"metric_path,omitempty" json:"metric_path,omitempty"`
	ErrorRateThreshold   *float64 `yaml:"error_rate_threshold,omitempty" json:"error_rate_threshold,omitempty"`
	MinRequestsPerMinute *int64   `yaml:"min_requests_per_minute,omitempty" json:"min_requests_per_minute,omitempty"`
}

// Validate reports every structural problem in the request. Unknown service
// types are not rejected here: they fail only their own target at evaluation
// time.
func (s ReportSpec) Validate() error {
	var errs []string
	if len(s.Projects) == 0 {
		errs = append(errs, "at least one project is required")
	}
	if s.LookbackDays < 0 {
		errs = append(errs, "lookback_days must not be negative")
	}
	if s.Concurrency < 0 {
		errs = append(errs, "concurrency must not be negative")
	}
	for i, project := range s.Projects {
		prefix := fmt.Sprintf("projects[%d]", i)
		if strings.TrimSpace(project.ID) == "" {
			errs = append(errs, fmt.Sprintf("%s.id is required", prefix))
		}
		if len(project.Services) == 0 {
			errs = append(errs, fmt.Sprintf("%s.services must not be empty", prefix))
		}
		for j, svc := range project.Services {
			for _, err := range validateService(svc) {
				errs = append(errs, fmt.Sprintf("%s.services[%d].%s", prefix, j, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateService(svc Service) []string {
	var errs []string
	if strings.TrimSpace(svc.Name) == "" {
		errs = append(errs, "name is required")
	}
	if strings.TrimSpace(svc.Type) == "" {
		errs = append(errs, "type is required")
	}
	if svc.Threshold < 0 || svc.Threshold > 100 {
		errs = append(errs, "threshold must be between 0 and 100")
	}
	if svc.ErrorRateThreshold != nil && (*svc.ErrorRateThreshold < 0 || *svc.ErrorRateThreshold > 1) {
		errs = append(errs, "error_rate_threshold must be between 0 and 1")
	}
	if svc.MinRequestsPerMinute != nil && *svc.MinRequestsPerMinute < 0 {
		errs = append(errs, "min_requests_per_minute must not be negative")
	}
	return errs
}

// ServiceCount returns the number of services across all projects.
func (s ReportSpec) ServiceCount() int {
	n := 0
	for _, project := range s.Projects {
		n += len(project.Services)
	}
	return n
}
