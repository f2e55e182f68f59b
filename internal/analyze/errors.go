package analyze

import (
	"errors"
	"fmt"
)

// ErrMetricNotFound reports that a filter matched no metric or label yet.
// It means zero data and is never surfaced past the fetch.
var ErrMetricNotFound = errors.New("metric not found")

var ErrDegenerateWindow = errors.New("degenerate window")

type MetricQueryError struct {
	Project string
	Filter  string
	Err     error
}

func (e *MetricQueryError) Error() string {
	return fmt.Sprintf("query project %s with filter %s: %v", e.Project, e.Filter, e.Err)
}

func (e *MetricQueryError) Unwrap() error {
	return e.Err
}
