package planner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bayneri/slareport/internal/spec"
)

func Render(w io.Writer, plan Plan) {
	fmt.Fprintf(w, "Window: %s to %s (%d minutes)\n", plan.Window.Start.Format(time.RFC3339), plan.Window.End.Format(time.RFC3339), plan.Window.Minutes())
	fmt.Fprintf(w, "Concurrency: %d\n", plan.Concurrency)
	if len(plan.Labels) > 0 {
		fmt.Fprintf(w, "Labels: %s\n", strings.Join(spec.SortedLabels(plan.Labels), ", "))
	}
	fmt.Fprintf(w, "Queries: %d\n", plan.Queries())
	fmt.Fprintln(w, "")

	fmt.Fprintln(w, "Targets:")
	for _, t := range plan.Targets {
		if t.Error != "" {
			fmt.Fprintf(w, "- %s/%s (%s): %s\n", t.Project, t.Service, t.Type, t.Error)
			continue
		}
		fmt.Fprintf(w, "- %s/%s (%s, threshold %.3f%%, error rate > %.4f, min %d req/min, %s)\n",
			t.Project, t.Service, t.Type, t.Threshold, t.ErrorRateThreshold, t.MinRequestsPerMinute, t.BadOutcomeMode)
		fmt.Fprintf(w, "    total: %s\n", t.TotalFilter)
		fmt.Fprintf(w, "    %s: %s\n", t.BadOutcomeMode, t.BadFilter)
	}
}
