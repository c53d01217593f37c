package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/armtune/tuner-core/internal/cache"
	"github.com/armtune/tuner-core/internal/experiment"
	"github.com/armtune/tuner-core/internal/metrics"
	"github.com/armtune/tuner-core/internal/optimizer"
	"github.com/armtune/tuner-core/internal/report"
	"github.com/armtune/tuner-core/pkg/config"
	"github.com/armtune/tuner-core/pkg/logger"
	"github.com/armtune/tuner-core/pkg/models"
	"github.com/armtune/tuner-core/pkg/utils"
)

// RunnerFactory opens the transport and builds the experiment runner.
// Deferred to a factory so the port is not held before the session
// actually starts, and so tests can substitute a simulated plant.
type RunnerFactory func() (optimizer.ExperimentRunner, error)

// Controller owns the optimization session state machine:
// INIT -> SEEDING -> SEARCHING -> (EARLY_STOPPED | BUDGET_EXHAUSTED)
// -> FINALIZED. Finalization always runs: the session summary is
// written and the cache cleared on every terminal path.
type Controller struct {
	cfg        *config.Config
	newRunner  RunnerFactory
	rng        *utils.RandSource
	collector  *metrics.Collector
	sessionID  string
	resultsDir string

	mu    sync.Mutex
	state State
}

// NewController creates a session controller.
func NewController(cfg *config.Config, newRunner RunnerFactory) *Controller {
	return &Controller{
		cfg:       cfg,
		newRunner: newRunner,
		rng:       utils.NewRandSource(0),
		collector: metrics.NewCollector(),
		state:     StateInit,
	}
}

// State returns the controller's current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	logger.Info("session state", "state", string(s))
}

// Run executes one full tuning session and returns its result. The
// returned result is also persisted under the configured results
// directory. A partial result is persisted even when the session
// fails mid-search.
func (c *Controller) Run(ctx context.Context) (*models.SessionResult, error) {
	start := time.Now()

	// INIT
	c.setState(StateInit)
	if err := c.initPaths(); err != nil {
		return nil, err
	}

	runner, err := c.newRunner()
	if err != nil {
		return nil, fmt.Errorf("opening experiment runner: %w", err)
	}

	trialWriter, err := report.NewTrialWriter(c.trialTablePath())
	if err != nil {
		return nil, err
	}
	defer trialWriter.Close()

	var monitor *experiment.ResourceMonitor
	if c.cfg.Session.MonitorResource {
		monitor, err = experiment.NewResourceMonitor(100 * time.Millisecond)
		if err != nil {
			logger.Warn("resource monitor unavailable", "error", err)
		} else {
			monitor.Start()
			defer monitor.Stop()
		}
	}

	// SEEDING
	c.setState(StateSeeding)
	seeds, err := c.loadSeeds()
	if err != nil {
		return nil, err
	}

	evalCache := cache.New()
	trialCount := 0
	evaluator := optimizer.NewEvaluator(
		runner,
		evalCache,
		c.cfg.Experiment.RunParameters(),
		c.cfg.Experiment.Tolerance,
		c.cfg.Experiment.OvershootPolicy,
		func(trial *models.Trial) {
			trialCount++
			c.collector.RecordTrial(trial)
			if trial.Status != models.TrialStatusCompleted {
				logger.Warn("trial failed", "id", trial.ID, "gains", trial.Gains.String(), "error", trial.Error)
				return
			}
			logger.Info("trial complete",
				"id", trial.ID,
				"gains", trial.Gains.String(),
				"settling_ms", trial.Metrics.SettlingTimeMs,
				"overshoot_pct", trial.Metrics.Overshoot,
				"rise_ms", trial.Metrics.RiseTimeMs)
			if err := trialWriter.Append(trial); err != nil {
				logger.Error("persisting trial failed", "id", trial.ID, "error", err)
			}
			if c.cfg.Session.PlotResponses {
				plotPath := filepath.Join(c.resultsDir, fmt.Sprintf("%s_trial_%d.png", c.sessionID, trial.ID))
				if err := report.PlotResponse(plotPath, trial, c.cfg.Experiment.DumpRateMs); err != nil {
					logger.Warn("plotting trial failed", "id", trial.ID, "error", err)
				}
			}
		},
	)

	backend, err := optimizer.New(c.cfg.Optimizer, c.rng)
	if err != nil {
		return nil, err
	}

	problem := optimizer.Problem{
		Objective:        evaluator.Cost,
		Constraint:       evaluator.Constraints,
		Bounds:           c.cfg.Bounds.ParameterBounds(),
		ConstraintBounds: c.cfg.Constraint.ConstraintBounds(),
		Seeds:            seeds,
		Iterations:       c.cfg.Optimizer.Iterations,
	}

	// SEARCHING
	c.setState(StateSearching)
	c.collector.Start()

	earlyStopped := false
	searchResult, searchErr := backend.Search(ctx, problem, func(step optimizer.Step) bool {
		logger.Debug("search step",
			"iteration", step.Iteration,
			"cost", step.Cost,
			"best_cost", step.BestCost,
			"convergence", step.Convergence)
		if step.BestCost <= c.cfg.Session.EarlyStopMs {
			logger.Info("early stop threshold reached",
				"best_settling_ms", step.BestCost,
				"threshold_ms", c.cfg.Session.EarlyStopMs)
			earlyStopped = true
			return false
		}
		return true
	})

	c.collector.Stop()

	terminal := StateBudgetExhausted
	if earlyStopped {
		terminal = StateEarlyStopped
	}
	c.setState(terminal)

	// FINALIZED: persist whatever we have, then drop the cache. Runs
	// even when the search itself failed.
	result := c.buildResult(searchResult, evalCache, trialCount, terminal, monitor, time.Since(start))
	if err := report.WriteSummary(c.summaryPath(), result); err != nil {
		logger.Error("writing session summary failed", "error", err)
		if searchErr == nil {
			searchErr = err
		}
	}
	evalCache.Clear()
	c.setState(StateFinalized)

	if earlyStopped && searchResult != nil {
		if err := AppendInitState(c.cfg.Session.InitStatesPath, searchResult.BestGains); err != nil {
			logger.Warn("saving good initial state failed", "error", err)
		}
	}

	if searchErr != nil {
		return result, fmt.Errorf("search aborted: %w", searchErr)
	}

	logger.Info("session finished",
		"terminal_state", string(terminal),
		"best_gains", result.BestGains.String(),
		"best_settling_ms", result.BestSettlingTimeMs,
		"trials", result.Trials,
		"elapsed", utils.FormatDuration(time.Since(start)))
	if agg, ok := result.Metrics[metrics.MetricSettlingTime]; ok {
		logger.Info("session settling time stats",
			"count", agg.Count,
			"min_ms", agg.Min,
			"mean_ms", agg.Mean,
			"p95_ms", agg.P95)
	}
	return result, nil
}

func (c *Controller) initPaths() error {
	c.sessionID = utils.GenerateSessionID()
	c.resultsDir = c.cfg.Session.ResultsDir
	if err := os.MkdirAll(c.resultsDir, 0o755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}
	return nil
}

func (c *Controller) sessionName() string {
	return fmt.Sprintf("%s_init_%d_%s",
		c.sessionID,
		c.cfg.Session.InitState,
		strings.ToLower(c.cfg.Optimizer.Name))
}

func (c *Controller) trialTablePath() string {
	return filepath.Join(c.resultsDir, c.sessionName()+".csv")
}

func (c *Controller) summaryPath() string {
	return filepath.Join(c.resultsDir, c.sessionName()+".yaml")
}

// loadSeeds selects the configured known-good triple. An absent state
// file means a cold start; an index outside the stored list is a
// configuration mistake and stops the session before any hardware runs.
func (c *Controller) loadSeeds() ([]models.GainTriple, error) {
	states, err := LoadInitStates(c.cfg.Session.InitStatesPath)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		logger.Info("no persisted initial states, starting cold")
		return nil, nil
	}

	idx := c.cfg.Session.InitState
	if idx < 0 || idx >= len(states) {
		return nil, fmt.Errorf("initial state index %d out of range (have %d states)", idx, len(states))
	}
	logger.Info("seeding from persisted state", "index", idx, "gains", states[idx].String())
	return []models.GainTriple{states[idx]}, nil
}

func (c *Controller) buildResult(search *optimizer.Result, evalCache *cache.Cache, trials int, terminal State, monitor *experiment.ResourceMonitor, elapsed time.Duration) *models.SessionResult {
	hits, misses := evalCache.Stats()
	result := &models.SessionResult{
		ParameterBounds:  c.cfg.Bounds.ParameterBounds(),
		ConstraintBounds: c.cfg.Constraint.ConstraintBounds(),
		Iterations:       c.cfg.Optimizer.Iterations,
		Trials:           trials,
		RunTimeMs:        c.cfg.Experiment.RunTimeMs,
		DumpRateMs:       c.cfg.Experiment.DumpRateMs,
		InitStateIndex:   c.cfg.Session.InitState,
		EarlyStopMs:      c.cfg.Session.EarlyStopMs,
		ElapsedSeconds:   elapsed.Seconds(),
		TerminalState:    string(terminal),
		CacheHits:        hits,
		CacheMisses:      misses,
		Metrics:          c.collector.Aggregates(),
	}
	if search != nil {
		result.BestGains = search.BestGains
		result.BestSettlingTimeMs = search.BestCost
	}
	if monitor != nil {
		monitor.Stop()
		cpu, rss := monitor.Peaks()
		result.PeakCPUPercent = cpu
		result.PeakRSSMB = float64(rss) / (1024 * 1024)
	}
	return result
}

// Collector exposes the session metrics for callers that want to log
// aggregate statistics after the run.
func (c *Controller) Collector() *metrics.Collector {
	return c.collector
}
