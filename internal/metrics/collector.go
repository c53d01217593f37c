package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/armtune/tuner-core/pkg/models"
)

// Metric names recorded per trial.
const (
	MetricSettlingTime  = "settling_time_ms"
	MetricOvershoot     = "overshoot_pct"
	MetricRiseTime      = "rise_time_ms"
	MetricISE           = "integral_squared_error"
	MetricTrialDuration = "trial_duration_ms"
)

// Collector collects time-series metric values over one tuning
// session. Safe for concurrent use.
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	timeSeries map[string][]*models.MetricPoint

	// Cached aggregations, invalidated on Record
	aggregations map[string]*models.Aggregation
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:    time.Now(),
		timeSeries:   make(map[string][]*models.MetricPoint),
		aggregations: make(map[string]*models.Aggregation),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a metric value at a specific timestamp
func (c *Collector) Record(name string, value float64, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	point := &models.MetricPoint{
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
	}
	c.timeSeries[name] = append(c.timeSeries[name], point)
	delete(c.aggregations, name)
}

// RecordNow records a metric value at the current time
func (c *Collector) RecordNow(name string, value float64) {
	c.Record(name, value, time.Now())
}

// RecordTrial records the metric set of one completed trial.
func (c *Collector) RecordTrial(trial *models.Trial) {
	if trial.Status != models.TrialStatusCompleted {
		return
	}
	ts := trial.Timestamp
	c.Record(MetricSettlingTime, trial.Metrics.SettlingTimeMs, ts)
	c.Record(MetricOvershoot, trial.Metrics.Overshoot, ts)
	c.Record(MetricRiseTime, trial.Metrics.RiseTimeMs, ts)
	c.Record(MetricISE, trial.Metrics.IntegralSquaredError, ts)
	c.Record(MetricTrialDuration, trial.DurationMs, ts)
}

// GetTimeSeries returns a copy of all points for a metric
func (c *Collector) GetTimeSeries(name string) []*models.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.timeSeries[name]
	if points == nil {
		return nil
	}
	result := make([]*models.MetricPoint, len(points))
	for i, p := range points {
		cp := *p
		result[i] = &cp
	}
	return result
}

// GetAggregation returns cached aggregated statistics for a metric,
// computing them on first access
func (c *Collector) GetAggregation(name string) *models.Aggregation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if agg, ok := c.aggregations[name]; ok {
		return agg
	}
	points := c.timeSeries[name]
	if len(points) == 0 {
		return nil
	}
	agg := calculateAggregation(points)
	c.aggregations[name] = agg
	return agg
}

// Aggregates returns aggregations for every recorded metric
func (c *Collector) Aggregates() map[string]*models.Aggregation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*models.Aggregation, len(c.timeSeries))
	for name, points := range c.timeSeries {
		if len(points) == 0 {
			continue
		}
		agg, ok := c.aggregations[name]
		if !ok {
			agg = calculateAggregation(points)
			c.aggregations[name] = agg
		}
		out[name] = agg
	}
	return out
}

// Duration returns the elapsed collection time
func (c *Collector) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(c.startTime)
}

// Clear clears all collected metrics
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timeSeries = make(map[string][]*models.MetricPoint)
	c.aggregations = make(map[string]*models.Aggregation)
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// calculateAggregation calculates aggregated statistics from metric points
func calculateAggregation(points []*models.MetricPoint) *models.Aggregation {
	if len(points) == 0 {
		return nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	sort.Float64s(values)

	count := int64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return &models.Aggregation{
		Count: count,
		Sum:   sum,
		Min:   values[0],
		Max:   values[len(values)-1],
		Mean:  sum / float64(count),
		P50:   calculatePercentile(values, 0.50),
		P95:   calculatePercentile(values, 0.95),
		P99:   calculatePercentile(values, 0.99),
	}
}

// calculatePercentile calculates the percentile value from a sorted slice
func calculatePercentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return 0.0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	index := p * float64(len(sortedValues)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sortedValues) {
		return sortedValues[len(sortedValues)-1]
	}

	weight := index - float64(lower)
	return sortedValues[lower]*(1-weight) + sortedValues[upper]*weight
}
