package report

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bayneri/slareport/internal/jobs"
)

func WriteJSON(path string, payload interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

func WriteSummaryJSON(path string, job jobs.Job) error {
	return WriteJSON(path, job)
}
