package session

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/armtune/tuner-core/pkg/models"
)

// LoadInitStates reads the persisted list of known-good gain triples.
// A missing file is not an error; tuning can start cold.
func LoadInitStates(path string) ([]models.GainTriple, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading initial states: %w", err)
	}

	var states []models.GainTriple
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("parsing initial states: %w", err)
	}
	return states, nil
}

// SaveInitStates writes the full list back.
func SaveInitStates(path string, states []models.GainTriple) error {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling initial states: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing initial states: %w", err)
	}
	return nil
}

// AppendInitState adds a newly found good triple to the list, so the
// next session can seed from it. Exact duplicates are skipped.
func AppendInitState(path string, gains models.GainTriple) error {
	states, err := LoadInitStates(path)
	if err != nil {
		return err
	}
	for _, s := range states {
		if s == gains {
			return nil
		}
	}
	return SaveInitStates(path, append(states, gains))
}
