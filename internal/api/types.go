package api

import "github.com/bayneri/slareport/internal/jobs"

type submitResponse struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

type listResponse struct {
	Jobs []jobs.Job `json:"jobs"`
}

// ServiceTypeResponse describes one registered service type.
type ServiceTypeResponse struct {
	Type                 string  `json:"type"`
	Description          string  `json:"description"`
	TotalMetric          string  `json:"total_metric"`
	ResourceFilter       string  `json:"resource_filter"`
	BadOutcomeMode       string  `json:"bad_outcome_mode"`
	ErrorRateThreshold   float64 `json:"error_rate_threshold"`
	MinRequestsPerMinute int64   `json:"min_requests_per_minute"`
}

type errorResponse struct {
	Error string `json:"error"`
}
