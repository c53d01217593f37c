package report

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/armtune/tuner-core/pkg/models"
)

// WriteSummary persists the one-shot session summary as a YAML
// document.
func WriteSummary(path string, result *models.SessionResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling session summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session summary: %w", err)
	}
	return nil
}

// ReadSummary loads a previously written session summary.
func ReadSummary(path string) (*models.SessionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session summary: %w", err)
	}
	var result models.SessionResult
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing session summary: %w", err)
	}
	return &result, nil
}
