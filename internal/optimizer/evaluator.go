// Package optimizer proposes gain triples and learns from their
// measured cost. Two backends share one evaluation path: a sequential
// surrogate-model search and a population-based differential
// evolution. Both minimize settling time subject to overshoot and
// rise-time constraints.
package optimizer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/armtune/tuner-core/internal/cache"
	"github.com/armtune/tuner-core/internal/metrics"
	"github.com/armtune/tuner-core/pkg/logger"
	"github.com/armtune/tuner-core/pkg/models"
	"github.com/armtune/tuner-core/pkg/utils"
)

// ExperimentRunner abstracts the physical experiment so the evaluator
// can be tested against a simulated plant.
type ExperimentRunner interface {
	Run(ctx context.Context, gains models.GainTriple, params models.RunParameters) (models.ResponseSeries, error)
}

// FailureCost is the sentinel cost reported to a backend when a trial
// fails. Large enough that no real settling time competes with it,
// small enough to keep surrogate arithmetic finite.
const FailureCost = 1e9

// Evaluator turns a gain proposal into a scalar cost and a constraint
// vector, routing every evaluation through the session cache so a
// revisited triple never re-runs the plant. Failures are remembered
// too: a triple that already failed is not retried against the
// hardware within the session.
type Evaluator struct {
	runner    ExperimentRunner
	cache     *cache.Cache
	params    models.RunParameters
	tolerance float64
	policy    string

	mu       sync.Mutex
	trialID  int
	failures map[models.GainTriple]error
	onTrial  func(*models.Trial)
}

// NewEvaluator creates an evaluator. onTrial, when non-nil, receives
// every fresh trial in evaluation order; cache hits do not re-fire it.
func NewEvaluator(runner ExperimentRunner, c *cache.Cache, params models.RunParameters, tolerance float64, policy string, onTrial func(*models.Trial)) *Evaluator {
	return &Evaluator{
		runner:    runner,
		cache:     c,
		params:    params,
		tolerance: tolerance,
		policy:    policy,
		failures:  make(map[models.GainTriple]error),
		onTrial:   onTrial,
	}
}

// Evaluate returns the metrics for a gain triple, running the plant
// only when the triple has not been seen before. A failed experiment
// yields one failed trial and an error; the same triple returns the
// remembered error on later calls, without touching the hardware. The
// cost helpers below translate the error into the sentinel responses
// the backends expect.
func (e *Evaluator) Evaluate(ctx context.Context, gains models.GainTriple) (models.PerformanceMetrics, error) {
	e.mu.Lock()
	if err, ok := e.failures[gains]; ok {
		e.mu.Unlock()
		logger.Debug("known failing triple", "kp", gains.Kp, "ki", gains.Ki, "kd", gains.Kd)
		return models.PerformanceMetrics{}, err
	}
	e.mu.Unlock()

	if entry, ok := e.cache.Get(gains); ok {
		logger.Debug("cache hit", "kp", gains.Kp, "ki", gains.Ki, "kd", gains.Kd)
		return entry.Metrics, nil
	}

	trial := &models.Trial{
		Gains:     gains,
		SetPoint:  e.params.SetPoint,
		Timestamp: time.Now(),
	}
	e.mu.Lock()
	e.trialID++
	trial.ID = e.trialID
	e.mu.Unlock()

	started := time.Now()
	series, err := e.runner.Run(ctx, gains, e.params)
	trial.DurationMs = utils.TimeToMs(time.Since(started))
	if err != nil {
		return models.PerformanceMetrics{}, e.fail(trial, gains, err)
	}

	m, err := metrics.Score(series, e.params.SetPoint, e.tolerance, float64(e.params.DumpRateMs), e.policy)
	if err != nil {
		return models.PerformanceMetrics{}, e.fail(trial, gains, err)
	}

	trial.Status = models.TrialStatusCompleted
	trial.Metrics = m
	trial.Series = series
	e.cache.Put(gains, cache.Entry{Series: series, Metrics: m})
	e.emit(trial)
	return m, nil
}

// fail records the failed trial once and memoizes the error for the
// triple so later cost or constraint queries do not re-drive the device.
func (e *Evaluator) fail(trial *models.Trial, gains models.GainTriple, err error) error {
	trial.Status = models.TrialStatusFailed
	trial.Error = err.Error()
	e.mu.Lock()
	e.failures[gains] = err
	e.mu.Unlock()
	e.emit(trial)
	return err
}

func (e *Evaluator) emit(trial *models.Trial) {
	if e.onTrial != nil {
		e.onTrial(trial)
	}
}

// Cost is the objective both backends minimize: the settling time of
// the response. Failed trials cost FailureCost.
func (e *Evaluator) Cost(ctx context.Context, gains models.GainTriple) float64 {
	m, err := e.Evaluate(ctx, gains)
	if err != nil {
		logger.Warn("trial failed, assigning sentinel cost",
			"kp", gains.Kp, "ki", gains.Ki, "kd", gains.Kd, "error", err)
		return FailureCost
	}
	return m.SettlingTimeMs
}

// Constraints returns the constraint vector in declared bound order:
// overshoot first, rise time second. A failed trial returns values no
// bound can admit.
func (e *Evaluator) Constraints(ctx context.Context, gains models.GainTriple) []float64 {
	m, err := e.Evaluate(ctx, gains)
	if err != nil {
		return []float64{math.MaxFloat64, math.MaxFloat64}
	}
	return []float64{m.Overshoot, m.RiseTimeMs}
}

// TrialCount returns how many fresh trials have run.
func (e *Evaluator) TrialCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trialID
}
