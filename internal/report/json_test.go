package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bayneri/slareport/internal/jobs"
)

func TestWriteSummaryJSON(t *testing.T) {
	job := completedJob("job-1", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), 1)
	path := filepath.Join(t.TempDir(), "out", "summary.json")
	if err := WriteSummaryJSON(path, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var got jobs.Job
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(job, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if data[len(data)-1] != '\n' {
		t.Fatalf("expected trailing newline")
	}
}
