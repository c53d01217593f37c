// Package cache memoizes physical experiment results within a single
// tuning session. A run on the plant takes tens of seconds, so a gain
// triple the optimizer revisits must not be re-run.
package cache

import (
	"sync"

	"github.com/armtune/tuner-core/pkg/models"
)

// Entry is one memoized evaluation.
type Entry struct {
	Series  models.ResponseSeries
	Metrics models.PerformanceMetrics
}

// Cache maps gain triples to their evaluation results. Keys compare by
// exact floating-point equality; a triple differing in the last bit is
// a distinct experiment. The cache lives for exactly one session and
// must be cleared at finalization so a later session can never be
// served another session's plant data.
type Cache struct {
	mu      sync.Mutex
	entries map[models.GainTriple]Entry
	hits    int
	misses  int
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[models.GainTriple]Entry),
	}
}

// Get looks up a prior evaluation for the exact triple.
func (c *Cache) Get(gains models.GainTriple) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[gains]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return entry, ok
}

// Put stores an evaluation result.
func (c *Cache) Put(gains models.GainTriple, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[gains] = entry
}

// Len returns the number of distinct triples evaluated.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear discards all entries. Counters survive so the session summary
// can still report them after finalization.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[models.GainTriple]Entry)
}
