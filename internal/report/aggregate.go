package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/jobs"
)

// AggregateResult combines several finished jobs, typically consecutive
// reporting periods, into one uptime figure per project and service.
type AggregateResult struct {
	Inputs   []string           `json:"inputs"`
	Status   string             `json:"status"`
	Start    time.Time          `json:"start"`
	End      time.Time          `json:"end"`
	Services []ServiceAggregate `json:"services"`
	Errors   []string           `json:"errors"`
	Warnings []string           `json:"warnings"`
}

type ServiceAggregate struct {
	Project          string  `json:"project"`
	Service          string  `json:"service"`
	Status           string  `json:"status"`
	Threshold        float64 `json:"threshold"`
	Reports          int     `json:"reports"`
	UptimePct        float64 `json:"uptime_pct"`
	DowntimeMinutes  int64   `json:"downtime_minutes"`
	EvaluatedMinutes int64   `json:"evaluated_minutes"`
	Compliant        bool    `json:"compliant"`
}

func ReadJobs(paths []string) ([]jobs.Job, error) {
	var out []jobs.Job
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var job jobs.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if job.ID == "" {
			return nil, fmt.Errorf("missing job id in %s", path)
		}
		out = append(out, job)
	}
	return out, nil
}

// Aggregate sums downtime and evaluated minutes per service across list and
// recomputes uptime over the combined minutes. Services keep first-seen order.
// Jobs that did not complete are reported as errors and left out of the sums.
// Overlapping windows only produce a warning.
func Aggregate(list []jobs.Job, inputs []string) (AggregateResult, error) {
	if len(list) == 0 {
		return AggregateResult{}, errors.New("no reports to aggregate")
	}
	result := AggregateResult{Inputs: inputs, Status: analyze.StatusOK}
	index := map[string]int{}
	var windows []analyze.Window
	for i, job := range list {
		name := job.ID
		if i < len(inputs) {
			name = inputs[i]
		}
		if job.Status != jobs.StatusCompleted {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: job %s is %s", name, job.ID, job.Status))
			result.Status = mergeStatus(result.Status, analyze.StatusError)
			continue
		}
		for _, w := range windows {
			if job.Window.Start.Before(w.End) && w.Start.Before(job.Window.End) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: window overlaps an earlier report", name))
				break
			}
		}
		windows = append(windows, job.Window)
		if result.Start.IsZero() || job.Window.Start.Before(result.Start) {
			result.Start = job.Window.Start
		}
		if job.Window.End.After(result.End) {
			result.End = job.Window.End
		}

		for _, project := range job.Result {
			for _, entry := range project.Services {
				key := project.ProjectID + "/" + entry.ServiceName
				pos, ok := index[key]
				if !ok {
					pos = len(result.Services)
					index[key] = pos
					result.Services = append(result.Services, ServiceAggregate{
						Project:   project.ProjectID,
						Service:   entry.ServiceName,
						Status:    analyze.StatusOK,
						Threshold: entry.Threshold,
					})
				}
				item := &result.Services[pos]
				item.Reports++
				if entry.Result == nil {
					item.Status = mergeStatus(item.Status, analyze.StatusError)
					continue
				}
				item.DowntimeMinutes += entry.Result.DowntimeMinutes
				item.EvaluatedMinutes += entry.Result.EvaluatedMinutes
			}
		}
	}

	for i := range result.Services {
		item := &result.Services[i]
		if item.EvaluatedMinutes > 0 {
			uptime := float64(item.EvaluatedMinutes-item.DowntimeMinutes) / float64(item.EvaluatedMinutes) * 100
			item.UptimePct = math.Round(uptime*10000) / 10000
			item.Compliant = item.UptimePct >= item.Threshold
			if !item.Compliant {
				item.Status = mergeStatus(item.Status, analyze.StatusBreach)
			}
		}
		result.Status = mergeStatus(result.Status, item.Status)
	}
	return result, nil
}

func WriteAggregateJSON(path string, result AggregateResult) error {
	return WriteJSON(path, result)
}

func WriteAggregateMarkdown(path string, result AggregateResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# slareport aggregate\n\n")
	fmt.Fprintf(&b, "- Inputs: %d\n", len(result.Inputs))
	fmt.Fprintf(&b, "- Status: %s\n", result.Status)
	if !result.Start.IsZero() {
		fmt.Fprintf(&b, "- Span: %s to %s\n", result.Start.Format(time.RFC3339), result.End.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\n| Project | Service | Reports | Uptime | Downtime (min) | Evaluated (min) | Threshold | Status |\n")
	fmt.Fprintf(&b, "| --- | --- | --- | --- | --- | --- | --- | --- |\n")
	for _, s := range result.Services {
		fmt.Fprintf(&b, "| %s | %s | %d | %.4f%% | %d | %d | %.3f%% | %s |\n",
			s.Project, s.Service, s.Reports, s.UptimePct, s.DowntimeMinutes, s.EvaluatedMinutes, s.Threshold, s.Status)
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "\n## Errors\n")
		for _, err := range result.Errors {
			fmt.Fprintf(&b, "- %s\n", err)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintf(&b, "\n## Warnings\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
