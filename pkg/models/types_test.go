package models

import (
	"math"
	"testing"
)

func TestGainTripleIsFinite(t *testing.T) {
	tests := []struct {
		name  string
		gains GainTriple
		want  bool
	}{
		{name: "all finite", gains: GainTriple{Kp: 12.5, Ki: 0.5, Kd: 0.02}, want: true},
		{name: "zero gains", gains: GainTriple{}, want: true},
		{name: "NaN Kp", gains: GainTriple{Kp: math.NaN()}, want: false},
		{name: "infinite Ki", gains: GainTriple{Ki: math.Inf(1)}, want: false},
		{name: "negative infinite Kd", gains: GainTriple{Kd: math.Inf(-1)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gains.IsFinite(); got != tt.want {
				t.Fatalf("IsFinite() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTripleFromSlice(t *testing.T) {
	g, err := TripleFromSlice([]float64{1.5, 0.25, 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := GainTriple{Kp: 1.5, Ki: 0.25, Kd: 0.1}
	if g != want {
		t.Fatalf("expected %v, got %v", want, g)
	}

	if _, err := TripleFromSlice([]float64{1, 2}); err == nil {
		t.Fatalf("expected error for short slice")
	}
}

func TestGainTripleAsMapKey(t *testing.T) {
	// Exact-match semantics: a perturbation in the 7th decimal is a
	// different key.
	seen := map[GainTriple]int{}
	seen[GainTriple{Kp: 1.0, Ki: 0.5, Kd: 0.2}]++
	seen[GainTriple{Kp: 1.0, Ki: 0.5, Kd: 0.2}]++
	seen[GainTriple{Kp: 1.0, Ki: 0.5, Kd: 0.2000001}]++

	if len(seen) != 2 {
		t.Fatalf("expected 2 distinct keys, got %d", len(seen))
	}
	if seen[GainTriple{Kp: 1.0, Ki: 0.5, Kd: 0.2}] != 2 {
		t.Fatalf("expected identical triples to collapse to one key")
	}
}

func TestResponseSeriesErrors(t *testing.T) {
	series := ResponseSeries{80, 90, 100}
	errs := series.Errors(90)
	want := []float64{-10, 0, 10}
	for i, e := range errs {
		if e != want[i] {
			t.Fatalf("error[%d] = %f, want %f", i, e, want[i])
		}
	}
}

func TestBoundContains(t *testing.T) {
	b := Bound{Lower: 0, Upper: 30}
	for _, v := range []float64{0, 15, 30} {
		if !b.Contains(v) {
			t.Fatalf("expected %f inside [0,30]", v)
		}
	}
	for _, v := range []float64{-0.001, 30.001} {
		if b.Contains(v) {
			t.Fatalf("expected %f outside [0,30]", v)
		}
	}
}

func TestParameterBoundsClamp(t *testing.T) {
	bounds := ParameterBounds{
		Kp: Bound{Lower: 1, Upper: 25},
		Ki: Bound{Lower: 0, Upper: 1},
		Kd: Bound{Lower: 0, Upper: 1},
	}
	clamped := bounds.Clamp(GainTriple{Kp: 30, Ki: -0.5, Kd: 0.5})
	want := GainTriple{Kp: 25, Ki: 0, Kd: 0.5}
	if clamped != want {
		t.Fatalf("expected %v, got %v", want, clamped)
	}
}

func TestConstraintBoundsSatisfied(t *testing.T) {
	constraints := ConstraintBounds{
		{Name: "overshoot", Bound: Bound{Lower: 0, Upper: 30}},
		{Name: "rise_time", Bound: Bound{Lower: 0, Upper: 600}},
	}

	if !constraints.Satisfied([]float64{20, 400}) {
		t.Fatalf("expected vector inside both bounds to satisfy")
	}
	if constraints.Satisfied([]float64{45, 400}) {
		t.Fatalf("expected overshoot outside bound to fail")
	}
	if constraints.Satisfied([]float64{20, 700}) {
		t.Fatalf("expected rise time outside bound to fail")
	}
	if constraints.Satisfied([]float64{20}) {
		t.Fatalf("expected short vector to fail")
	}
}
