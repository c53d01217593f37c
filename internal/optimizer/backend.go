package optimizer

import (
	"context"
	"fmt"

	"github.com/armtune/tuner-core/pkg/config"
	"github.com/armtune/tuner-core/pkg/models"
	"github.com/armtune/tuner-core/pkg/utils"
)

// Problem is the shared contract between the session and a backend.
// Objective and Constraint are pure from the backend's point of view;
// caching and hardware access hide behind them.
type Problem struct {
	// Objective returns the cost to minimize for a proposal.
	Objective func(ctx context.Context, gains models.GainTriple) float64

	// Constraint returns one value per entry of ConstraintBounds, in
	// the bounds' declared order.
	Constraint func(ctx context.Context, gains models.GainTriple) []float64

	Bounds           models.ParameterBounds
	ConstraintBounds models.ConstraintBounds

	// Seeds are known-good triples probed before autonomous search.
	Seeds []models.GainTriple

	// Iterations is the search budget after seeding.
	Iterations int
}

// Step is delivered to the subscriber after every completed search
// step so the session can decide to stop early.
type Step struct {
	Iteration int
	Gains     models.GainTriple
	Cost      float64
	BestGains models.GainTriple
	BestCost  float64

	// Convergence is a backend-specific spread measure; zero for
	// backends that do not track one.
	Convergence float64
}

// StepFunc observes a completed step. Returning false stops the search.
type StepFunc func(Step) bool

// Result is the outcome of one backend search.
type Result struct {
	BestGains  models.GainTriple
	BestCost   float64
	Iterations int
	Stopped    bool
}

// Backend runs a search over the gain space.
type Backend interface {
	Name() string
	Search(ctx context.Context, problem Problem, onStep StepFunc) (*Result, error)
}

// New creates the backend selected by configuration.
func New(cfg config.OptimizerConfig, rng *utils.RandSource) (Backend, error) {
	switch cfg.Name {
	case config.OptimizerBayesian:
		return NewSurrogateBackend(cfg, rng), nil
	case config.OptimizerDifferentialEvolution:
		return NewDiffEvoBackend(cfg, rng), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", cfg.Name)
	}
}

// admissible reports whether a constraint vector falls inside every
// declared bound.
func admissible(bounds models.ConstraintBounds, values []float64) bool {
	return bounds.Satisfied(values)
}
