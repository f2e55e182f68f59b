package jobs

import (
	"encoding/json"
	"time"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/spec"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one report request and, once terminal, its outcome. Result and
// Summary are set only when completed; Error only when failed.
type Job struct {
	ID         string                  `json:"id"`
	Status     Status                  `json:"status"`
	CreatedAt  time.Time               `json:"created_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	Request    spec.ReportSpec         `json:"request_spec"`
	Window     analyze.Window          `json:"window"`
	Labels     map[string]string       `json:"labels,omitempty"`
	Result     []analyze.ProjectReport `json:"result,omitempty"`
	Summary    *analyze.Summary        `json:"summary,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Outcome is the terminal write applied to a processing job.
type Outcome struct {
	Status     Status
	FinishedAt time.Time
	Result     []analyze.ProjectReport
	Error      string
}

// apply returns a copy of j moved to the terminal state described by o.
func (j Job) apply(o Outcome) (Job, error) {
	if j.Status != StatusProcessing || !o.Status.Terminal() {
		return Job{}, &TransitionError{ID: j.ID, From: j.Status, To: o.Status}
	}
	next := j.Clone()
	next.Status = o.Status
	finished := o.FinishedAt.UTC()
	next.FinishedAt = &finished
	if o.Status == StatusCompleted {
		next.Result = o.Result
		summary := analyze.Summarize(o.Result)
		next.Summary = &summary
	} else {
		next.Error = o.Error
	}
	return next, nil
}

// Clone deep-copies j through its JSON form, which is also its persisted form.
func (j Job) Clone() Job {
	data, err := json.Marshal(j)
	if err != nil {
		return j
	}
	var out Job
	if err := json.Unmarshal(data, &out); err != nil {
		return j
	}
	return out
}
