package pool

import (
	"sync"

	"github.com/willf/bloom"
)

// seenCache suppresses duplicate event ids arriving from multiple relays.
//
// A bloom filter gives a fast negative answer for events never seen on any
// relay; a bounded exact set covers the recent window so that bloom false
// positives stay under the filter's configured rate rather than turning
// into missed dispatches wholesale.
type seenCache struct {
	mu    sync.Mutex
	bloom *bloom.BloomFilter
	exact map[string]struct{}
	order []string
	max   int
}

func newSeenCache(size int) *seenCache {
	if size <= 0 {
		size = 100000
	}
	return &seenCache{
		bloom: bloom.NewWithEstimates(uint(size), 0.001),
		exact: make(map[string]struct{}, size),
		order: make([]string, 0, size),
		max:   size,
	}
}

// seen reports whether id was observed before, recording it either way.
func (c *seenCache) seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bloom.TestAndAdd([]byte(id)) {
		c.remember(id)
		return false
	}
	if _, ok := c.exact[id]; ok {
		return true
	}
	// Bloom hit without an exact entry: either an id evicted from the
	// recent window or a false positive. Both are treated as duplicates.
	return true
}

func (c *seenCache) remember(id string) {
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.exact, oldest)
	}
	c.exact[id] = struct{}{}
	c.order = append(c.order, id)
}
