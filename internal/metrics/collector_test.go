package metrics

import (
	"testing"
	"time"

	"github.com/armtune/tuner-core/pkg/models"
)

func TestCollectorRecordAndAggregate(t *testing.T) {
	c := NewCollector()
	c.Start()

	for _, v := range []float64{3000, 2500, 2000} {
		c.RecordNow(MetricSettlingTime, v)
	}
	c.Stop()

	agg := c.GetAggregation(MetricSettlingTime)
	if agg == nil {
		t.Fatal("expected aggregation")
	}
	if agg.Count != 3 {
		t.Errorf("count: got %d, want 3", agg.Count)
	}
	if agg.Min != 2000 || agg.Max != 3000 {
		t.Errorf("min/max: got %g/%g, want 2000/3000", agg.Min, agg.Max)
	}
	if agg.Mean != 2500 {
		t.Errorf("mean: got %g, want 2500", agg.Mean)
	}
}

func TestCollectorAggregationInvalidation(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricOvershoot, 10)

	first := c.GetAggregation(MetricOvershoot)
	if first.Count != 1 {
		t.Fatalf("count: got %d, want 1", first.Count)
	}

	c.RecordNow(MetricOvershoot, 20)
	second := c.GetAggregation(MetricOvershoot)
	if second.Count != 2 {
		t.Fatalf("stale aggregation after new record: count %d", second.Count)
	}
}

func TestCollectorRecordTrial(t *testing.T) {
	c := NewCollector()

	completed := &models.Trial{
		ID:     1,
		Status: models.TrialStatusCompleted,
		Metrics: models.PerformanceMetrics{
			Overshoot:      5,
			RiseTimeMs:     800,
			SettlingTimeMs: 2400,
		},
		Timestamp:  time.Now(),
		DurationMs: 12000,
	}
	failed := &models.Trial{
		ID:        2,
		Status:    models.TrialStatusFailed,
		Timestamp: time.Now(),
	}

	c.RecordTrial(completed)
	c.RecordTrial(failed)

	agg := c.GetAggregation(MetricSettlingTime)
	if agg == nil || agg.Count != 1 {
		t.Fatalf("expected exactly one settling time sample, got %+v", agg)
	}
	dur := c.GetAggregation(MetricTrialDuration)
	if dur == nil || dur.Mean != 12000 {
		t.Fatalf("expected trial duration recorded, got %+v", dur)
	}
}

func TestCollectorAggregates(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricSettlingTime, 2500)
	c.RecordNow(MetricRiseTime, 700)

	all := c.Aggregates()
	if len(all) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(all))
	}
	if all[MetricSettlingTime] == nil || all[MetricRiseTime] == nil {
		t.Fatal("missing aggregation entries")
	}
}

func TestCollectorClear(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricISE, 42)
	c.Clear()

	if agg := c.GetAggregation(MetricISE); agg != nil {
		t.Fatalf("expected no aggregation after clear, got %+v", agg)
	}
	if pts := c.GetTimeSeries(MetricISE); pts != nil {
		t.Fatalf("expected no points after clear, got %d", len(pts))
	}
}

func TestCalculatePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	tests := []struct {
		name     string
		p        float64
		expected float64
	}{
		{"p0", 0, 1},
		{"p50", 0.5, 3},
		{"p100", 1.0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculatePercentile(sorted, tt.p); got != tt.expected {
				t.Errorf("got %g, want %g", got, tt.expected)
			}
		})
	}
}
