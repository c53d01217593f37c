package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/armtune/tuner-core/pkg/models"
)

func sampleTrial(id int) *models.Trial {
	return &models.Trial{
		ID:    id,
		Gains: models.GainTriple{Kp: 12.5, Ki: 0.4, Kd: 0.02},
		Metrics: models.PerformanceMetrics{
			Overshoot:      5.5,
			RiseTimeMs:     700,
			SettlingTimeMs: 2400,
		},
		Series:    models.ResponseSeries{10, 50, 88, 92, 90},
		SetPoint:  90,
		Status:    models.TrialStatusCompleted,
		Timestamp: time.Now(),
	}
}

func TestTrialWriterSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trials.csv")
	w, err := NewTrialWriter(path)
	if err != nil {
		t.Fatalf("creating writer: %v", err)
	}

	if err := w.Append(sampleTrial(1)); err != nil {
		t.Fatalf("appending trial: %v", err)
	}
	if err := w.Append(sampleTrial(2)); err != nil {
		t.Fatalf("appending trial: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening table: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading table: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}

	header := strings.Join(rows[0], ",")
	want := "experiment_id,kp,ki,kd,overshoot,rise_time,settling_time,angle_values,set_point"
	if header != want {
		t.Fatalf("header mismatch:\n got %s\nwant %s", header, want)
	}

	if rows[1][0] != "1" || rows[2][0] != "2" {
		t.Fatalf("experiment ids wrong: %s, %s", rows[1][0], rows[2][0])
	}
	if rows[1][7] != "10;50;88;92;90" {
		t.Fatalf("angle values wrong: %s", rows[1][7])
	}
	if rows[1][8] != "90" {
		t.Fatalf("set point wrong: %s", rows[1][8])
	}
}

func TestTrialWriterIncremental(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trials.csv")
	w, err := NewTrialWriter(path)
	if err != nil {
		t.Fatalf("creating writer: %v", err)
	}
	defer w.Close()

	if err := w.Append(sampleTrial(1)); err != nil {
		t.Fatalf("appending trial: %v", err)
	}

	// The row must be on disk before the session ends.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading table mid-session: %v", err)
	}
	if !strings.Contains(string(data), "12.5") {
		t.Fatal("trial row not flushed incrementally")
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.yaml")
	result := &models.SessionResult{
		BestGains:          models.GainTriple{Kp: 14.2, Ki: 0.3, Kd: 0.08},
		BestSettlingTimeMs: 2300,
		Iterations:         25,
		Trials:             27,
		RunTimeMs:          10000,
		DumpRateMs:         100,
		InitStateIndex:     0,
		EarlyStopMs:        2500,
		ElapsedSeconds:     312.5,
		TerminalState:      "EARLY_STOPPED",
		CacheHits:          2,
		CacheMisses:        27,
	}

	if err := WriteSummary(path, result); err != nil {
		t.Fatalf("writing summary: %v", err)
	}
	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	if got.BestGains != result.BestGains {
		t.Errorf("best gains: got %v, want %v", got.BestGains, result.BestGains)
	}
	if got.TerminalState != "EARLY_STOPPED" {
		t.Errorf("terminal state: got %s", got.TerminalState)
	}
	if got.BestSettlingTimeMs != 2300 {
		t.Errorf("best settling: got %g", got.BestSettlingTimeMs)
	}
}

func TestPlotResponse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trial_1.png")
	if err := PlotResponse(path, sampleTrial(1), 100); err != nil {
		t.Fatalf("plotting: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("plot file empty")
	}
}

func TestPlotResponseEmptySeries(t *testing.T) {
	trial := sampleTrial(1)
	trial.Series = nil
	if err := PlotResponse(filepath.Join(t.TempDir(), "x.png"), trial, 100); err == nil {
		t.Fatal("expected error for empty series")
	}
}
