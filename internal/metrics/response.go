// Package metrics scores response trajectories against the control
// criteria the optimizer minimizes, and aggregates per-trial values
// for the session summary.
package metrics

import (
	"fmt"
	"math"

	"github.com/armtune/tuner-core/pkg/config"
	"github.com/armtune/tuner-core/pkg/models"
)

// NeverReached is returned by Overshoot when the response never makes
// it to the set point. Callers must special-case it before comparing
// against constraint bounds.
var NeverReached = math.Inf(-1)

// InvalidMeasurementError reports a series that cannot be scored.
type InvalidMeasurementError struct {
	Metric string
	Reason string
}

func (e *InvalidMeasurementError) Error() string {
	return fmt.Sprintf("invalid measurement for %s: %s", e.Metric, e.Reason)
}

// Overshoot returns the relative excess of the response peak beyond
// the set point, in percent. When the response never reaches the set
// point from its starting side the sentinel NeverReached is returned.
// The peak is taken on the far side of the set point: the maximum for
// a positive set point, the minimum for a negative one, the largest
// magnitude when the set point is zero.
func Overshoot(series models.ResponseSeries, setPoint float64, policy string) (float64, error) {
	if len(series) == 0 {
		return 0, &InvalidMeasurementError{Metric: "overshoot", Reason: "empty series"}
	}

	max := series[0]
	min := series[0]
	for _, v := range series[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}

	initial := series[0]
	reached := false
	switch {
	case initial < setPoint:
		reached = max >= setPoint
	case initial > setPoint:
		reached = min <= setPoint
	default:
		reached = true
	}
	if !reached {
		return NeverReached, nil
	}

	var peak float64
	switch {
	case setPoint > 0:
		peak = max
	case setPoint < 0:
		peak = min
	default:
		peak = max
		if math.Abs(min) > math.Abs(max) {
			peak = min
		}
		// No normalization is possible against a zero set point;
		// report the raw peak magnitude.
		return math.Abs(peak), nil
	}

	overshoot := (peak - setPoint) / setPoint * 100
	if policy == config.OvershootAbsolute {
		overshoot = math.Abs(overshoot)
	}
	return overshoot, nil
}

// SettlingTime scans the series backward from the end, subtracting one
// sample interval for every trailing sample inside the tolerance band
// [setPoint*(1-tol), setPoint*(1+tol)]. The result is the elapsed time
// up to the first sample, counted from the end, that lies outside the
// band. This deliberately does not check that the response stays in
// the band once it last entered it; an oscillating tail that happens
// to end inside the band scores better than it should.
func SettlingTime(series models.ResponseSeries, setPoint, tolerance, perValueTimeMs float64) (float64, error) {
	if len(series) == 0 {
		return 0, &InvalidMeasurementError{Metric: "settling_time", Reason: "empty series"}
	}

	lower := setPoint * (1 - tolerance)
	upper := setPoint * (1 + tolerance)
	if lower > upper {
		lower, upper = upper, lower
	}

	timing := perValueTimeMs * float64(len(series))
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if v < lower || v > upper {
			return timing, nil
		}
		timing -= perValueTimeMs
	}

	// Every sample is inside the band.
	return 0, nil
}

// RiseTime returns the elapsed time until the first sample that
// reaches or crosses the set point from the series' starting side.
// If the response never gets there the full run duration is returned.
func RiseTime(series models.ResponseSeries, setPoint, perValueTimeMs float64) (float64, error) {
	if len(series) == 0 {
		return 0, &InvalidMeasurementError{Metric: "rise_time", Reason: "empty series"}
	}

	fromBelow := series[0] <= setPoint
	for i, v := range series {
		if fromBelow && v >= setPoint {
			return perValueTimeMs * float64(i+1), nil
		}
		if !fromBelow && v <= setPoint {
			return perValueTimeMs * float64(i+1), nil
		}
	}
	return perValueTimeMs * float64(len(series)), nil
}

// IntegralSquaredError sums the squared errors over only the trailing
// fraction of the series given by latestProportion. Weighting the tail
// penalizes steady-state error without punishing the initial transient.
func IntegralSquaredError(errors []float64, latestProportion float64) float64 {
	n := int(float64(len(errors)) * latestProportion)
	if n <= 0 {
		return 0
	}
	tail := errors[len(errors)-n:]

	sum := 0.0
	for _, e := range tail {
		sum += e * e
	}
	return sum
}

// Score computes the full metric set for one response series.
func Score(series models.ResponseSeries, setPoint, tolerance, perValueTimeMs float64, policy string) (models.PerformanceMetrics, error) {
	var m models.PerformanceMetrics

	overshoot, err := Overshoot(series, setPoint, policy)
	if err != nil {
		return m, err
	}
	settling, err := SettlingTime(series, setPoint, tolerance, perValueTimeMs)
	if err != nil {
		return m, err
	}
	rise, err := RiseTime(series, setPoint, perValueTimeMs)
	if err != nil {
		return m, err
	}

	m.Overshoot = overshoot
	m.SettlingTimeMs = settling
	m.RiseTimeMs = rise
	m.IntegralSquaredError = IntegralSquaredError(series.Errors(setPoint), 0.5)
	return m, nil
}
