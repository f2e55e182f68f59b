package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/spec"
)

type Options struct {
	Explain  bool
	Timezone *time.Location
}

func WriteMarkdownSummary(path string, job jobs.Job, opts Options) error {
	return os.WriteFile(path, []byte(Markdown(job, opts)), 0644)
}

func Markdown(job jobs.Job, opts Options) string {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	var b strings.Builder
	windowStart := job.Window.Start.In(opts.Timezone).Format(time.RFC3339)
	windowEnd := job.Window.End.In(opts.Timezone).Format(time.RFC3339)

	fmt.Fprintf(&b, "# SLA compliance report\n\n")
	fmt.Fprintf(&b, "- Job: %s\n", job.ID)
	fmt.Fprintf(&b, "- Status: %s\n", job.Status)
	fmt.Fprintf(&b, "- Window: %s to %s\n", windowStart, windowEnd)
	fmt.Fprintf(&b, "- Duration: %s\n", formatDuration(job.Window.DurationSeconds))
	if len(job.Labels) > 0 {
		fmt.Fprintf(&b, "- Labels: %s\n", strings.Join(spec.SortedLabels(job.Labels), ", "))
	}
	if job.Summary != nil {
		fmt.Fprintf(&b, "- Services: %d compliant, %d non-compliant, %d errored\n",
			job.Summary.Compliant, job.Summary.NonCompliant, job.Summary.Errored)
	}
	if job.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", job.Error)
	}

	for _, project := range job.Result {
		fmt.Fprintf(&b, "\n## %s\n\n", project.ProjectID)
		fmt.Fprintf(&b, "| Service | Type | Threshold | Uptime | Downtime (min) | Evaluated (min) | Skipped (min) | Budget consumed | Status |\n")
		fmt.Fprintf(&b, "| --- | --- | --- | --- | --- | --- | --- | --- | --- |\n")
		for _, entry := range project.Services {
			if entry.Result == nil {
				fmt.Fprintf(&b, "| %s | %s | %.3f%% | - | - | - | - | - | %s |\n",
					entry.ServiceName, entry.ServiceType, entry.Threshold, entry.Status)
				continue
			}
			budget := "-"
			if entry.BudgetConsumedPct != nil {
				budget = fmt.Sprintf("%.2f%%", *entry.BudgetConsumedPct)
			}
			r := entry.Result
			fmt.Fprintf(&b, "| %s | %s | %.3f%% | %.4f%% | %d | %d | %d | %s | %s |\n",
				entry.ServiceName, entry.ServiceType, entry.Threshold, r.UptimePct,
				r.DowntimeMinutes, r.EvaluatedMinutes, r.SkippedMinutes, budget, entry.Status)
		}
	}

	if errs := Errors(job); len(errs) > 0 {
		fmt.Fprintf(&b, "\n## Errors\n")
		for _, err := range errs {
			fmt.Fprintf(&b, "- %s\n", err)
		}
	}

	if opts.Explain {
		fmt.Fprintf(&b, "\n## How computed\n\n")
		fmt.Fprintf(&b, "A minute is down when bad / total > error rate threshold; minutes with fewer requests than the minimum are skipped and count as up.\n")
		fmt.Fprintf(&b, "Formula: uptime = (evaluated - downtime) / evaluated * 100; compliant when uptime >= threshold.\n")
	}
	return b.String()
}

// Status folds every entry of job into the worst status seen.
func Status(job jobs.Job) string {
	if job.Status == jobs.StatusFailed {
		return analyze.StatusError
	}
	status := analyze.StatusOK
	for _, project := range job.Result {
		for _, entry := range project.Services {
			status = mergeStatus(status, entry.Status)
		}
	}
	return status
}

func mergeStatus(a, b string) string {
	score := func(value string) int {
		switch value {
		case analyze.StatusBreach:
			return 3
		case analyze.StatusError:
			return 2
		case analyze.StatusOK:
			return 1
		default:
			return 0
		}
	}
	if score(b) > score(a) {
		return b
	}
	return a
}

func formatDuration(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}
