package planner

import (
	"fmt"
	"strings"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/spec"
)

// Plan is the set of queries a report request would issue, computed without
// touching the metric backend.
type Plan struct {
	Window      analyze.Window
	Concurrency int
	Labels      map[string]string
	Targets     []TargetPlan
}

type TargetPlan struct {
	ID                   string
	Project              string
	Service              string
	Type                 string
	Threshold            float64
	TotalFilter          string
	BadFilter            string
	BadOutcomeMode       string
	ErrorRateThreshold   float64
	MinRequestsPerMinute int64
	// Error is set when the target cannot be evaluated at all.
	Error string
}

type Options struct {
	Window analyze.Window
	Labels map[string]string
}

func Build(req spec.ReportSpec, configs analyze.ConfigResolver, opts Options) Plan {
	plan := Plan{
		Window:      opts.Window,
		Concurrency: req.Concurrency,
		Labels:      mergeLabels(req.Labels, opts.Labels),
	}
	for _, target := range analyze.Targets(req) {
		svc := target.Service
		tp := TargetPlan{
			ID:        sanitizeID(fmt.Sprintf("%s-%s", target.ProjectID, svc.Name)),
			Project:   target.ProjectID,
			Service:   svc.Name,
			Type:      svc.Type,
			Threshold: svc.Threshold,
		}
		cfg, err := configs.ConfigFor(svc)
		if err != nil {
			tp.Error = err.Error()
			plan.Targets = append(plan.Targets, tp)
			continue
		}
		tp.TotalFilter = cfg.TotalFilter()
		tp.BadFilter = cfg.BadFilter()
		tp.BadOutcomeMode = cfg.BadOutcome.Mode()
		tp.ErrorRateThreshold = cfg.ErrorRateThreshold
		tp.MinRequestsPerMinute = cfg.MinRequestsPerMinute
		plan.Targets = append(plan.Targets, tp)
	}
	return plan
}

// Queries is the number of backend calls the plan issues.
func (p Plan) Queries() int {
	n := 0
	for _, t := range p.Targets {
		if t.Error == "" {
			n += 2
		}
	}
	return n
}

func mergeLabels(base, extra map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func sanitizeID(input string) string {
	normalized := strings.ToLower(input)
	var out []rune
	lastDash := false
	for _, r := range normalized {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			lastDash = false
			continue
		}
		if !lastDash {
			out = append(out, '-')
			lastDash = true
		}
	}
	result := strings.Trim(string(out), "-")
	if result == "" {
		return "target"
	}
	return result
}
