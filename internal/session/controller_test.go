package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/armtune/tuner-core/internal/metrics"
	"github.com/armtune/tuner-core/internal/optimizer"
	"github.com/armtune/tuner-core/internal/report"
	"github.com/armtune/tuner-core/pkg/config"
	"github.com/armtune/tuner-core/pkg/models"
)

// simulatedPlant returns a canned response regardless of gains.
type simulatedPlant struct {
	series models.ResponseSeries
	runs   int
}

func (p *simulatedPlant) Run(ctx context.Context, gains models.GainTriple, params models.RunParameters) (models.ResponseSeries, error) {
	p.runs++
	return p.series, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Experiment.RunTimeMs = 900
	cfg.Experiment.DumpRateMs = 100
	cfg.Optimizer.Name = config.OptimizerBayesian
	cfg.Optimizer.Iterations = 3
	cfg.Optimizer.InitPoints = 1
	cfg.Session.ResultsDir = filepath.Join(dir, "results")
	cfg.Session.InitStatesPath = filepath.Join(dir, "init_states.json")
	return cfg
}

// settles at 400ms with 5% tolerance around 90
func settledSeries() models.ResponseSeries {
	return models.ResponseSeries{50, 60, 70, 85, 90, 91, 90, 89, 90}
}

// never enters the band: settling = full run duration
func unsettledSeries() models.ResponseSeries {
	return models.ResponseSeries{10, 20, 30, 35, 40, 42, 41, 40, 41}
}

func factory(p *simulatedPlant) RunnerFactory {
	return func() (optimizer.ExperimentRunner, error) { return p, nil }
}

func TestSessionEarlyStopsAfterOneTrial(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.EarlyStopMs = 2500

	plant := &simulatedPlant{series: settledSeries()}
	c := NewController(cfg, factory(plant))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
	if result.TerminalState != string(StateEarlyStopped) {
		t.Fatalf("terminal state: got %s, want EARLY_STOPPED", result.TerminalState)
	}
	// First trial already satisfies the threshold.
	if plant.runs != 1 {
		t.Fatalf("expected a single experiment before early stop, got %d", plant.runs)
	}
	if result.BestSettlingTimeMs != 400 {
		t.Fatalf("best settling: got %g, want 400", result.BestSettlingTimeMs)
	}
	if c.State() != StateFinalized {
		t.Fatalf("controller state: got %s, want FINALIZED", c.State())
	}
}

func TestSessionBudgetExhausted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.EarlyStopMs = 100 // unreachable: response never settles below run time

	plant := &simulatedPlant{series: unsettledSeries()}
	c := NewController(cfg, factory(plant))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
	if result.TerminalState != string(StateBudgetExhausted) {
		t.Fatalf("terminal state: got %s, want BUDGET_EXHAUSTED", result.TerminalState)
	}
}

func TestSessionWritesArtifacts(t *testing.T) {
	cfg := testConfig(t)
	plant := &simulatedPlant{series: settledSeries()}
	c := NewController(cfg, factory(plant))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}

	entries, err := os.ReadDir(cfg.Session.ResultsDir)
	if err != nil {
		t.Fatalf("reading results dir: %v", err)
	}
	var csvPath, yamlPath string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".csv") {
			csvPath = filepath.Join(cfg.Session.ResultsDir, e.Name())
		}
		if strings.HasSuffix(e.Name(), ".yaml") {
			yamlPath = filepath.Join(cfg.Session.ResultsDir, e.Name())
		}
	}
	if csvPath == "" || yamlPath == "" {
		t.Fatalf("missing artifacts, dir has %d entries", len(entries))
	}

	summary, err := report.ReadSummary(yamlPath)
	if err != nil {
		t.Fatalf("reading summary: %v", err)
	}
	if summary.BestGains != result.BestGains {
		t.Fatalf("summary best gains: got %v, want %v", summary.BestGains, result.BestGains)
	}
	if summary.Trials == 0 {
		t.Fatal("summary trial count is zero")
	}

	// The per-session aggregates travel with the summary. Every trial
	// replays the same canned response, so the stats are degenerate.
	agg, ok := summary.Metrics[metrics.MetricSettlingTime]
	if !ok {
		t.Fatal("summary missing settling time aggregation")
	}
	if agg.Count != int64(summary.Trials) {
		t.Fatalf("aggregation count: got %d, want %d", agg.Count, summary.Trials)
	}
	if agg.Mean != 400 || agg.Min != 400 || agg.Max != 400 {
		t.Fatalf("settling aggregation: got mean %g min %g max %g, want 400", agg.Mean, agg.Min, agg.Max)
	}

	table, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("reading trial table: %v", err)
	}
	if !strings.HasPrefix(string(table), "experiment_id,kp,ki,kd") {
		t.Fatalf("trial table header wrong: %.60s", table)
	}
}

func TestSessionSavesGoodStateOnEarlyStop(t *testing.T) {
	cfg := testConfig(t)
	plant := &simulatedPlant{series: settledSeries()}
	c := NewController(cfg, factory(plant))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}

	states, err := LoadInitStates(cfg.Session.InitStatesPath)
	if err != nil {
		t.Fatalf("loading states: %v", err)
	}
	if len(states) != 1 || states[0] != result.BestGains {
		t.Fatalf("expected best gains persisted, got %v", states)
	}
}

func TestSessionSeedsFromPersistedState(t *testing.T) {
	cfg := testConfig(t)
	seed := models.GainTriple{Kp: 12, Ki: 0.5, Kd: 0.5}
	if err := SaveInitStates(cfg.Session.InitStatesPath, []models.GainTriple{seed}); err != nil {
		t.Fatalf("saving states: %v", err)
	}

	plant := &simulatedPlant{series: settledSeries()}
	c := NewController(cfg, factory(plant))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
	// The seed is probed first and already early-stops the session.
	if result.BestGains != seed {
		t.Fatalf("best gains: got %v, want seed %v", result.BestGains, seed)
	}
}

func TestSessionInitStateIndexOutOfRange(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.InitState = 5
	if err := SaveInitStates(cfg.Session.InitStatesPath, []models.GainTriple{{Kp: 12}}); err != nil {
		t.Fatalf("saving states: %v", err)
	}

	plant := &simulatedPlant{series: settledSeries()}
	c := NewController(cfg, factory(plant))

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected error for out-of-range initial state index")
	}
	if plant.runs != 0 {
		t.Fatalf("no experiment may run before seeding fails, got %d", plant.runs)
	}
}

func TestInitStatesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.json")

	// Missing file is a cold start, not an error.
	states, err := LoadInitStates(path)
	if err != nil {
		t.Fatalf("loading missing file: %v", err)
	}
	if states != nil {
		t.Fatalf("expected no states, got %v", states)
	}

	a := models.GainTriple{Kp: 10, Ki: 0.5, Kd: 0.1}
	b := models.GainTriple{Kp: 14, Ki: 0.2, Kd: 0.3}
	if err := AppendInitState(path, a); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := AppendInitState(path, b); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := AppendInitState(path, a); err != nil { // duplicate
		t.Fatalf("append duplicate: %v", err)
	}

	states, err = LoadInitStates(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 states after duplicate skip, got %d", len(states))
	}
	if states[0] != a || states[1] != b {
		t.Fatalf("states out of order: %v", states)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateEarlyStopped, StateBudgetExhausted, StateFinalized} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []State{StateInit, StateSeeding, StateSearching} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}
