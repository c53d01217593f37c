package models

import (
	"fmt"
	"math"
	"time"
)

// GainTriple holds the three PID controller coefficients being tuned.
// It is a value type and serves directly as the evaluation cache key,
// with exact floating-point equality.
type GainTriple struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Ki float64 `json:"ki" yaml:"ki"`
	Kd float64 `json:"kd" yaml:"kd"`
}

// IsFinite reports whether all three gains are finite numbers.
func (g GainTriple) IsFinite() bool {
	for _, v := range []float64{g.Kp, g.Ki, g.Kd} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Slice returns the gains in [Kp, Ki, Kd] order.
func (g GainTriple) Slice() []float64 {
	return []float64{g.Kp, g.Ki, g.Kd}
}

// String formats the triple for logs and result files.
func (g GainTriple) String() string {
	return fmt.Sprintf("(Kp=%g, Ki=%g, Kd=%g)", g.Kp, g.Ki, g.Kd)
}

// TripleFromSlice builds a GainTriple from a [Kp, Ki, Kd] slice.
func TripleFromSlice(v []float64) (GainTriple, error) {
	if len(v) != 3 {
		return GainTriple{}, fmt.Errorf("gain vector must have 3 entries, got %d", len(v))
	}
	return GainTriple{Kp: v[0], Ki: v[1], Kd: v[2]}, nil
}

// RunParameters are the per-session experiment settings. They are fixed
// when the session starts and never change while it runs.
type RunParameters struct {
	RunTimeMs  int     `json:"run_time_ms" yaml:"run_time_ms"`
	DumpRateMs int     `json:"dump_rate_ms" yaml:"dump_rate_ms"`
	SetPoint   float64 `json:"set_point" yaml:"set_point"`
}

// ResponseSeries is the plant output sampled every DumpRateMs over
// RunTimeMs. It is produced once per distinct GainTriple per session and
// never mutated afterwards.
type ResponseSeries []float64

// Errors returns the per-sample error series relative to the set point.
func (s ResponseSeries) Errors(setPoint float64) []float64 {
	errs := make([]float64, len(s))
	for i, v := range s {
		errs[i] = v - setPoint
	}
	return errs
}

// PerformanceMetrics is the control-theoretic score card for one response.
// Overshoot is a percentage (negative infinity when the response never
// reached the set point), times are in milliseconds.
type PerformanceMetrics struct {
	Overshoot            float64 `json:"overshoot" yaml:"overshoot"`
	RiseTimeMs           float64 `json:"rise_time_ms" yaml:"rise_time_ms"`
	SettlingTimeMs       float64 `json:"settling_time_ms" yaml:"settling_time_ms"`
	IntegralSquaredError float64 `json:"integral_squared_error" yaml:"integral_squared_error"`
}

// Bound is an inclusive (lower, upper) interval.
type Bound struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Contains reports whether v lies inside the bound, inclusive on both ends.
func (b Bound) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// ParameterBounds is the optimizer search space per gain.
type ParameterBounds struct {
	Kp Bound `json:"kp" yaml:"kp"`
	Ki Bound `json:"ki" yaml:"ki"`
	Kd Bound `json:"kd" yaml:"kd"`
}

// Slice returns the bounds in [Kp, Ki, Kd] order.
func (p ParameterBounds) Slice() []Bound {
	return []Bound{p.Kp, p.Ki, p.Kd}
}

// Clamp projects a gain triple onto the search space.
func (p ParameterBounds) Clamp(g GainTriple) GainTriple {
	clamp := func(v float64, b Bound) float64 {
		if v < b.Lower {
			return b.Lower
		}
		if v > b.Upper {
			return b.Upper
		}
		return v
	}
	return GainTriple{
		Kp: clamp(g.Kp, p.Kp),
		Ki: clamp(g.Ki, p.Ki),
		Kd: clamp(g.Kd, p.Kd),
	}
}

// NamedBound is one constraint entry. Order matters: the i-th entry of a
// ConstraintBounds list maps to the i-th entry of the constraint function's
// output vector.
type NamedBound struct {
	Name  string `json:"name" yaml:"name"`
	Bound Bound  `json:"bound" yaml:"bound"`
}

// ConstraintBounds is the ordered set of constraint intervals. The first
// entry bounds overshoot, the second bounds rise time.
type ConstraintBounds []NamedBound

// Satisfied reports whether every entry of the constraint vector lies
// inside its corresponding bound. Vectors of the wrong length are never
// satisfied.
func (c ConstraintBounds) Satisfied(vector []float64) bool {
	if len(vector) != len(c) {
		return false
	}
	for i, nb := range c {
		if !nb.Bound.Contains(vector[i]) {
			return false
		}
	}
	return true
}

// TrialStatus marks whether a trial produced usable metrics.
type TrialStatus string

const (
	TrialStatusCompleted TrialStatus = "completed"
	TrialStatusFailed    TrialStatus = "failed"
)

// Trial is one evaluated gain triple with its metrics. Trials carry a
// monotonically increasing id and are only ever appended to the session
// log; they form the audit trail of the whole session.
type Trial struct {
	ID         int                `json:"id"`
	Gains      GainTriple         `json:"gains"`
	Metrics    PerformanceMetrics `json:"metrics"`
	Series     ResponseSeries     `json:"series"`
	SetPoint   float64            `json:"set_point"`
	Status     TrialStatus        `json:"status"`
	Error      string             `json:"error,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	DurationMs float64            `json:"duration_ms"`
}

// SessionResult is the one-shot summary written when a tuning session
// reaches a terminal state. Immutable once written.
type SessionResult struct {
	BestGains          GainTriple       `yaml:"best_gains"`
	BestSettlingTimeMs float64          `yaml:"best_settling_time_ms"`
	ParameterBounds    ParameterBounds  `yaml:"parameter_bounds"`
	ConstraintBounds   ConstraintBounds `yaml:"constraint_bounds"`
	Iterations         int              `yaml:"iterations"`
	Trials             int              `yaml:"trials"`
	RunTimeMs          int              `yaml:"run_time_ms"`
	DumpRateMs         int              `yaml:"dump_rate_ms"`
	InitStateIndex     int              `yaml:"init_state_index"`
	EarlyStopMs        float64          `yaml:"early_stop_ms"`
	ElapsedSeconds     float64          `yaml:"elapsed_seconds"`
	TerminalState      string           `yaml:"terminal_state"`
	CacheHits          int              `yaml:"cache_hits"`
	CacheMisses        int              `yaml:"cache_misses"`
	PeakCPUPercent     float64          `yaml:"peak_cpu_percent,omitempty"`
	PeakRSSMB          float64          `yaml:"peak_rss_mb,omitempty"`

	// Per-metric statistics over every completed trial of the session.
	Metrics map[string]*Aggregation `yaml:"metrics,omitempty"`
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Aggregation represents aggregated statistics for a metric
type Aggregation struct {
	Count int64   `json:"count" yaml:"count"`
	Sum   float64 `json:"sum" yaml:"sum"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Mean  float64 `json:"mean" yaml:"mean"`
	P50   float64 `json:"p50" yaml:"p50"`
	P95   float64 `json:"p95" yaml:"p95"`
	P99   float64 `json:"p99" yaml:"p99"`
}
