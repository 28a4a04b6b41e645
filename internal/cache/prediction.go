package cache

import (
	"strings"
	"sync/atomic"
	"time"
)

// PredictionCache remembers the category predicted for a description.
// Predictions are deterministic for loaded artifacts, so a hit is always
// what the classifier would return.
type PredictionCache struct {
	lru          *LRUCache[string]
	hits, misses atomic.Int64
}

func NewPredictionCache(size int, ttl time.Duration) *PredictionCache {
	return &PredictionCache{lru: NewLRUCache[string](size, ttl)}
}

// key collapses whitespace; case is kept since the model may see it.
func key(description string) string {
	return strings.Join(strings.Fields(description), " ")
}

func (c *PredictionCache) Get(description string) (string, bool) {
	v, ok := c.lru.Get(key(description))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *PredictionCache) Set(description, category string) {
	c.lru.Set(key(description), category)
}

func (c *PredictionCache) CleanExpired() int { return c.lru.CleanExpired() }

func (c *PredictionCache) Size() int { return c.lru.Size() }

// Stats returns hit and miss counts.
func (c *PredictionCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
