package optimizer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/armtune/tuner-core/pkg/config"
	"github.com/armtune/tuner-core/pkg/logger"
	"github.com/armtune/tuner-core/pkg/models"
	"github.com/armtune/tuner-core/pkg/utils"
)

const (
	// Candidate pool sampled per acquisition maximization.
	acquisitionCandidates = 1000

	// UCB exploration weight.
	ucbKappa = 2.576

	// EI exploration margin.
	eiXi = 0.01

	gpNoise       = 1e-6
	gpLengthScale = 0.2
)

// SurrogateBackend is the sequential search. It fits a Gaussian
// process to the evaluations seen so far and picks the next proposal
// by maximizing an acquisition function over the model. Internally the
// model works on the negated cost, so acquisition maximization chases
// the smallest settling time.
type SurrogateBackend struct {
	cfg config.OptimizerConfig
	rng *utils.RandSource
}

// NewSurrogateBackend creates the surrogate-model backend.
func NewSurrogateBackend(cfg config.OptimizerConfig, rng *utils.RandSource) *SurrogateBackend {
	return &SurrogateBackend{cfg: cfg, rng: rng}
}

func (b *SurrogateBackend) Name() string {
	return config.OptimizerBayesian
}

// Search probes the seeds, samples a handful of random points to prime
// the model, then runs the acquisition loop for the configured budget.
// The subscriber fires after every completed evaluation, probes
// included.
func (b *SurrogateBackend) Search(ctx context.Context, problem Problem, onStep StepFunc) (*Result, error) {
	bounds := problem.Bounds.Slice()
	gp := newGaussianProcess(gpLengthScale, gpNoise)

	result := &Result{BestCost: math.Inf(1)}
	step := 0

	// evaluate runs one proposal, feeds the model, and notifies the
	// subscriber. It returns false when the search must stop.
	evaluate := func(gains models.GainTriple) bool {
		gains = problem.Bounds.Clamp(gains)
		cost := problem.Objective(ctx, gains)

		effective := cost
		if !admissible(problem.ConstraintBounds, problem.Constraint(ctx, gains)) {
			effective = FailureCost
		}

		gp.add(normalize(gains, bounds), -effective)

		step++
		result.Iterations = step
		if effective < result.BestCost {
			result.BestCost = effective
			result.BestGains = gains
		}

		if onStep != nil {
			keepGoing := onStep(Step{
				Iteration: step,
				Gains:     gains,
				Cost:      effective,
				BestGains: result.BestGains,
				BestCost:  result.BestCost,
			})
			if !keepGoing {
				result.Stopped = true
				return false
			}
		}
		return true
	}

	for _, seed := range problem.Seeds {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !evaluate(seed) {
			return result, nil
		}
	}

	for i := 0; i < b.cfg.InitPoints; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !evaluate(b.randomTriple(bounds)) {
			return result, nil
		}
	}

	for i := 0; i < b.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		next, ok := b.propose(gp, bounds)
		if !ok {
			// Singular model; fall back to a random draw rather than
			// stalling the session.
			logger.Warn("surrogate model not usable, sampling randomly")
			next = b.randomTriple(bounds)
		}
		if !evaluate(next) {
			return result, nil
		}
	}

	return result, nil
}

// propose maximizes the acquisition function over a random candidate
// pool. Returns false when the model cannot be fit.
func (b *SurrogateBackend) propose(gp *gaussianProcess, bounds []models.Bound) (models.GainTriple, bool) {
	if err := gp.fit(); err != nil {
		return models.GainTriple{}, false
	}

	bestY := gp.bestObserved()
	var best []float64
	bestScore := math.Inf(-1)

	for i := 0; i < acquisitionCandidates; i++ {
		candidate := []float64{b.rng.Float64(), b.rng.Float64(), b.rng.Float64()}
		mean, std := gp.predict(candidate)

		var score float64
		switch b.cfg.Acquisition {
		case config.AcquisitionEI:
			score = expectedImprovement(mean, std, bestY)
		default:
			score = mean + ucbKappa*std
		}

		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	return denormalize(best, bounds), true
}

func (b *SurrogateBackend) randomTriple(bounds []models.Bound) models.GainTriple {
	return models.GainTriple{
		Kp: b.rng.UniformFloat64(bounds[0].Lower, bounds[0].Upper),
		Ki: b.rng.UniformFloat64(bounds[1].Lower, bounds[1].Upper),
		Kd: b.rng.UniformFloat64(bounds[2].Lower, bounds[2].Upper),
	}
}

// normalize maps a triple into the unit cube spanned by the bounds.
func normalize(g models.GainTriple, bounds []models.Bound) []float64 {
	vals := g.Slice()
	out := make([]float64, len(vals))
	for i, v := range vals {
		span := bounds[i].Upper - bounds[i].Lower
		if span <= 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - bounds[i].Lower) / span
	}
	return out
}

func denormalize(x []float64, bounds []models.Bound) models.GainTriple {
	vals := make([]float64, 3)
	for i := range vals {
		vals[i] = bounds[i].Lower + x[i]*(bounds[i].Upper-bounds[i].Lower)
	}
	return models.GainTriple{Kp: vals[0], Ki: vals[1], Kd: vals[2]}
}

// gaussianProcess is a minimal RBF-kernel regressor over the unit
// cube. Observations are standardized before fitting; predictions are
// mapped back to observation units.
type gaussianProcess struct {
	x           [][]float64
	y           []float64
	lengthScale float64
	noise       float64

	chol   mat.Cholesky
	alpha  *mat.VecDense
	yMean  float64
	yScale float64
	fitted int
}

func newGaussianProcess(lengthScale, noise float64) *gaussianProcess {
	return &gaussianProcess{
		lengthScale: lengthScale,
		noise:       noise,
	}
}

func (gp *gaussianProcess) add(x []float64, y float64) {
	gp.x = append(gp.x, x)
	gp.y = append(gp.y, y)
}

func (gp *gaussianProcess) bestObserved() float64 {
	best := math.Inf(-1)
	for _, v := range gp.y {
		if v > best {
			best = v
		}
	}
	return best
}

func (gp *gaussianProcess) kernel(a, b []float64) float64 {
	r2 := 0.0
	for i := range a {
		d := a[i] - b[i]
		r2 += d * d
	}
	return math.Exp(-r2 / (2 * gp.lengthScale * gp.lengthScale))
}

// fit factorizes the kernel matrix and precomputes the weight vector.
// Refitting is skipped when no observation arrived since the last fit.
func (gp *gaussianProcess) fit() error {
	n := len(gp.x)
	if n == 0 {
		return errNoObservations
	}
	if gp.fitted == n {
		return nil
	}

	gp.yMean = utils.Mean(gp.y)
	gp.yScale = utils.StdDev(gp.y)
	if gp.yScale < 1e-9 {
		gp.yScale = 1
	}

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := gp.kernel(gp.x[i], gp.x[j])
			if i == j {
				v += gp.noise
			}
			k.SetSym(i, j, v)
		}
	}

	if ok := gp.chol.Factorize(k); !ok {
		return errSingularKernel
	}

	centered := make([]float64, n)
	for i, v := range gp.y {
		centered[i] = (v - gp.yMean) / gp.yScale
	}
	gp.alpha = mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(gp.alpha, mat.NewVecDense(n, centered)); err != nil {
		return err
	}
	gp.fitted = n
	return nil
}

// predict returns the posterior mean and standard deviation at x, in
// observation units.
func (gp *gaussianProcess) predict(x []float64) (mean, std float64) {
	n := len(gp.x)
	kvec := make([]float64, n)
	for i, xi := range gp.x {
		kvec[i] = gp.kernel(x, xi)
	}
	kv := mat.NewVecDense(n, kvec)

	mean = mat.Dot(kv, gp.alpha)*gp.yScale + gp.yMean

	var v mat.VecDense
	if err := gp.chol.SolveVecTo(&v, kv); err != nil {
		return mean, gp.yScale
	}
	variance := 1 - mat.Dot(kv, &v)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance) * gp.yScale
}

// expectedImprovement scores a candidate by how much it is expected to
// exceed the best observation.
func expectedImprovement(mean, std, best float64) float64 {
	if std < 1e-12 {
		return 0
	}
	z := (mean - best - eiXi) / std
	return (mean-best-eiXi)*normalCDF(z) + std*normalPDF(z)
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func normalPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}
