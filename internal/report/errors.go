package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/bayneri/slareport/internal/jobs"
)

// Errors lists every per-target failure of job, plus the job error if it failed.
func Errors(job jobs.Job) []string {
	var out []string
	if job.Error != "" {
		out = append(out, fmt.Sprintf("job: %s", job.Error))
	}
	for _, project := range job.Result {
		for _, entry := range project.Services {
			if entry.Error != "" {
				out = append(out, fmt.Sprintf("%s/%s: %s", project.ProjectID, entry.ServiceName, entry.Error))
			}
		}
	}
	return out
}

func WriteErrorsMarkdown(path string, errors []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Evaluation errors\n\n")
	for _, err := range errors {
		fmt.Fprintf(&b, "- %s\n", err)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
