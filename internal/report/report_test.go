package report

import (
	"time"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/jobs"
)

func floatPtr(v float64) *float64 { return &v }

func completedJob(id string, start time.Time, checkoutDowntime int64) jobs.Job {
	window := analyze.NewWindow(start, start.Add(time.Hour))
	finished := start.Add(time.Hour + time.Minute)
	result := []analyze.ProjectReport{
		{ProjectID: "shop-prod", Services: []analyze.ServiceReportEntry{
			{
				ServiceName: "checkout",
				ServiceType: "cloud_run_revision",
				Threshold:   99,
				Compliant:   checkoutDowntime == 0,
				Status:      map[bool]string{true: analyze.StatusOK, false: analyze.StatusBreach}[checkoutDowntime == 0],
				Result: &analyze.SLAResult{
					UptimePct:        float64(60-checkoutDowntime) / 60 * 100,
					DowntimeMinutes:  checkoutDowntime,
					EvaluatedMinutes: 60,
					SkippedMinutes:   3,
				},
				BudgetConsumedPct: floatPtr(0),
			},
			{
				ServiceName: "assets",
				ServiceType: "gcs_bucket",
				Threshold:   99.5,
				Status:      analyze.StatusError,
				Error:       "query project shop-prod: quota exceeded",
			},
		}},
	}
	summary := analyze.Summarize(result)
	return jobs.Job{
		ID:         id,
		Status:     jobs.StatusCompleted,
		CreatedAt:  start,
		FinishedAt: &finished,
		Window:     window,
		Labels:     map[string]string{"team": "sre"},
		Result:     result,
		Summary:    &summary,
	}
}
