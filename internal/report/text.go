package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bayneri/slareport/internal/jobs"
)

// WriteTable prints one row per evaluated service.
func WriteTable(w io.Writer, job jobs.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tSERVICE\tUPTIME\tDOWNTIME\tTHRESHOLD\tRESULT")
	for _, project := range job.Result {
		for _, entry := range project.Services {
			if entry.Result == nil {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\t%.3f%%\tERROR\n", project.ProjectID, entry.ServiceName, entry.Threshold)
				continue
			}
			verdict := "COMPLIANT"
			if !entry.Compliant {
				verdict = "NON-COMPLIANT"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.4f%%\t%dm\t%.3f%%\t%s\n",
				project.ProjectID, entry.ServiceName, entry.Result.UptimePct, entry.Result.DowntimeMinutes, entry.Threshold, verdict)
		}
	}
	return tw.Flush()
}
