package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func Load(path string) (ReportSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReportSpec{}, fmt.Errorf("read report spec: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (ReportSpec, error) {
	var s ReportSpec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return ReportSpec{}, fmt.Errorf("parse report spec: %w", err)
	}
	return s, nil
}
