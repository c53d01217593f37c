package optimizer

import (
	"context"
	"math"

	"github.com/armtune/tuner-core/pkg/config"
	"github.com/armtune/tuner-core/pkg/models"
	"github.com/armtune/tuner-core/pkg/utils"
)

// DiffEvoBackend is the population-based search: classic rand/1/bin
// differential evolution minimizing the cost directly. The population
// is seeded with the known-good triples and filled up with uniform
// random members drawn from the parameter bounds. Evaluations run one
// at a time; there is only one plant.
type DiffEvoBackend struct {
	cfg config.OptimizerConfig
	rng *utils.RandSource
}

// NewDiffEvoBackend creates the differential evolution backend.
func NewDiffEvoBackend(cfg config.OptimizerConfig, rng *utils.RandSource) *DiffEvoBackend {
	return &DiffEvoBackend{cfg: cfg, rng: rng}
}

func (b *DiffEvoBackend) Name() string {
	return config.OptimizerDifferentialEvolution
}

// Search evolves the population for the configured number of
// generations. The subscriber fires once per generation with the
// current best member and a convergence measure: the standard
// deviation of the population's costs relative to their mean.
func (b *DiffEvoBackend) Search(ctx context.Context, problem Problem, onStep StepFunc) (*Result, error) {
	popSize := b.cfg.PopulationSize
	if popSize < 4 {
		// rand/1 mutation needs three distinct partners per target.
		popSize = 4
	}

	evalCost := func(gains models.GainTriple) float64 {
		cost := problem.Objective(ctx, gains)
		if !admissible(problem.ConstraintBounds, problem.Constraint(ctx, gains)) {
			return FailureCost
		}
		return cost
	}

	population := b.initialPopulation(problem, popSize)
	costs := make([]float64, popSize)
	result := &Result{BestCost: math.Inf(1)}

	for i, member := range population {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		costs[i] = evalCost(member)
		if costs[i] < result.BestCost {
			result.BestCost = costs[i]
			result.BestGains = member
		}
	}

	for gen := 1; gen <= b.cfg.Iterations; gen++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		for i := range population {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			trial := b.mutate(population, i, problem.Bounds)
			trialCost := evalCost(trial)
			if trialCost <= costs[i] {
				population[i] = trial
				costs[i] = trialCost
				if trialCost < result.BestCost {
					result.BestCost = trialCost
					result.BestGains = trial
				}
			}
		}

		result.Iterations = gen
		if onStep != nil {
			keepGoing := onStep(Step{
				Iteration:   gen,
				Gains:       result.BestGains,
				Cost:        result.BestCost,
				BestGains:   result.BestGains,
				BestCost:    result.BestCost,
				Convergence: convergenceMeasure(costs),
			})
			if !keepGoing {
				result.Stopped = true
				return result, nil
			}
		}
	}

	return result, nil
}

// initialPopulation places the seeds first and fills the remainder
// with uniform draws from the search space.
func (b *DiffEvoBackend) initialPopulation(problem Problem, popSize int) []models.GainTriple {
	bounds := problem.Bounds.Slice()
	population := make([]models.GainTriple, 0, popSize)

	for _, seed := range problem.Seeds {
		if len(population) == popSize {
			break
		}
		population = append(population, problem.Bounds.Clamp(seed))
	}
	for len(population) < popSize {
		population = append(population, models.GainTriple{
			Kp: b.rng.UniformFloat64(bounds[0].Lower, bounds[0].Upper),
			Ki: b.rng.UniformFloat64(bounds[1].Lower, bounds[1].Upper),
			Kd: b.rng.UniformFloat64(bounds[2].Lower, bounds[2].Upper),
		})
	}
	return population
}

// mutate builds a rand/1/bin trial vector for target index i and
// clamps it back into the search space.
func (b *DiffEvoBackend) mutate(population []models.GainTriple, i int, bounds models.ParameterBounds) models.GainTriple {
	r1, r2, r3 := b.distinctPartners(len(population), i)

	base := population[r1].Slice()
	d1 := population[r2].Slice()
	d2 := population[r3].Slice()
	target := population[i].Slice()

	donor := make([]float64, 3)
	for d := 0; d < 3; d++ {
		donor[d] = base[d] + b.cfg.Mutation*(d1[d]-d2[d])
	}

	// Binomial crossover with one guaranteed donor dimension.
	forced := b.rng.Intn(3)
	trial := make([]float64, 3)
	for d := 0; d < 3; d++ {
		if d == forced || b.rng.Float64() < b.cfg.Crossover {
			trial[d] = donor[d]
		} else {
			trial[d] = target[d]
		}
	}

	gains, _ := models.TripleFromSlice(trial)
	return bounds.Clamp(gains)
}

// distinctPartners draws three distinct population indices, all
// different from the target.
func (b *DiffEvoBackend) distinctPartners(popSize, target int) (int, int, int) {
	pick := func(exclude ...int) int {
		for {
			candidate := b.rng.Intn(popSize)
			ok := true
			for _, e := range exclude {
				if candidate == e {
					ok = false
					break
				}
			}
			if ok {
				return candidate
			}
		}
	}
	r1 := pick(target)
	r2 := pick(target, r1)
	r3 := pick(target, r1, r2)
	return r1, r2, r3
}

// convergenceMeasure is the relative spread of the population's costs.
// Zero means the population has collapsed onto one cost value.
func convergenceMeasure(costs []float64) float64 {
	mean := utils.Mean(costs)
	if mean == 0 {
		return 0
	}
	return utils.StdDev(costs) / math.Abs(mean)
}
