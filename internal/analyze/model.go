package analyze

import (
	"time"

	"github.com/bayneri/slareport/internal/spec"
)

const (
	StatusOK     = "ok"
	StatusBreach = "breach"
	StatusError  = "error"
)

// Window is a minute-aligned half-open interval [Start, End).
type Window struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// NewWindow floors both ends to the minute.
func NewWindow(start, end time.Time) Window {
	start, end = FloorMinute(start), FloorMinute(end)
	return Window{
		Start:           start,
		End:             end,
		DurationSeconds: end.Unix() - start.Unix(),
	}
}

// Minutes is the number of whole 60-second buckets in the window.
func (w Window) Minutes() int64 {
	return (w.End.Unix() - w.Start.Unix()) / 60
}

type SLAResult struct {
	UptimePct        float64 `json:"uptime_pct"`
	DowntimeMinutes  int64   `json:"downtime_minutes"`
	EvaluatedMinutes int64   `json:"evaluated_minutes"`
	SkippedMinutes   int64   `json:"skipped_minutes"`
}

type ServiceReportEntry struct {
	ServiceName       string     `json:"service_name"`
	ServiceType       string     `json:"service_type"`
	Threshold         float64    `json:"threshold"`
	Compliant         bool       `json:"compliant"`
	Status            string     `json:"status"`
	Result            *SLAResult `json:"result,omitempty"`
	BudgetConsumedPct *float64   `json:"budget_consumed_pct,omitempty"`
	Error             string     `json:"error,omitempty"`
}

type ProjectReport struct {
	ProjectID string               `json:"project_id"`
	Services  []ServiceReportEntry `json:"services"`
}

type Target struct {
	ProjectID string
	Service   spec.Service
}

// Targets flattens a request into evaluation targets in request order.
func Targets(s spec.ReportSpec) []Target {
	var out []Target
	for _, project := range s.Projects {
		for _, svc := range project.Services {
			out = append(out, Target{ProjectID: project.ID, Service: svc})
		}
	}
	return out
}

type Summary struct {
	Total        int `json:"total"`
	Compliant    int `json:"compliant"`
	NonCompliant int `json:"non_compliant"`
	Errored      int `json:"errored"`
}

func Summarize(projects []ProjectReport) Summary {
	var s Summary
	for _, project := range projects {
		for _, entry := range project.Services {
			s.Total++
			switch entry.Status {
			case StatusOK:
				s.Compliant++
			case StatusBreach:
				s.NonCompliant++
			default:
				s.Errored++
			}
		}
	}
	return s
}
