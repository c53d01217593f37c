// Package report persists session artifacts: the growing trial table,
// the final session summary, and optional response plots.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/armtune/tuner-core/pkg/models"
)

var trialColumns = []string{
	"experiment_id",
	"kp",
	"ki",
	"kd",
	"overshoot",
	"rise_time",
	"settling_time",
	"angle_values",
	"set_point",
}

// TrialWriter appends trial rows to a CSV file as they complete, so a
// crashed session still leaves a usable table behind.
type TrialWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewTrialWriter creates the file and writes the header row.
func NewTrialWriter(path string) (*TrialWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trial table: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(trialColumns); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing trial table header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return nil, err
	}

	return &TrialWriter{file: file, writer: w}, nil
}

// Append writes one trial row and flushes it to disk.
func (t *TrialWriter) Append(trial *models.Trial) error {
	row := []string{
		strconv.Itoa(trial.ID),
		formatFloat(trial.Gains.Kp),
		formatFloat(trial.Gains.Ki),
		formatFloat(trial.Gains.Kd),
		formatFloat(trial.Metrics.Overshoot),
		formatFloat(trial.Metrics.RiseTimeMs),
		formatFloat(trial.Metrics.SettlingTimeMs),
		joinSeries(trial.Series),
		formatFloat(trial.SetPoint),
	}
	if err := t.writer.Write(row); err != nil {
		return fmt.Errorf("appending trial %d: %w", trial.ID, err)
	}
	t.writer.Flush()
	return t.writer.Error()
}

// Close flushes and closes the table.
func (t *TrialWriter) Close() error {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// joinSeries serializes the response the same way the firmware dumps
// it, so rows can be re-parsed with the wire codec.
func joinSeries(series models.ResponseSeries) string {
	parts := make([]string, len(series))
	for i, v := range series {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ";")
}
