package alerting

import "sync"

// SuppressionCounters counts alerts withheld while a pool sits in the
// flat phase, keyed by pool then kind. It is shared between all pool
// goroutines and the status surfaces, so access is serialized.
type SuppressionCounters struct {
	mu sync.Mutex
	m  map[string]map[Kind]uint64
}

// NewSuppressionCounters returns an empty counter set.
func NewSuppressionCounters() *SuppressionCounters {
	return &SuppressionCounters{m: make(map[string]map[Kind]uint64)}
}

// Inc records one suppressed alert and returns the new total for the pair.
func (c *SuppressionCounters) Inc(pool string, kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	perPool := c.m[pool]
	if perPool == nil {
		perPool = make(map[Kind]uint64)
		c.m[pool] = perPool
	}
	perPool[kind]++
	return perPool[kind]
}

// Get returns the suppressed count for one pool and kind.
func (c *SuppressionCounters) Get(pool string, kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[pool][kind]
}

// Snapshot copies the full counter map for reporting.
func (c *SuppressionCounters) Snapshot() map[string]map[Kind]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[Kind]uint64, len(c.m))
	for pool, kinds := range c.m {
		cp := make(map[Kind]uint64, len(kinds))
		for k, v := range kinds {
			cp[k] = v
		}
		out[pool] = cp
	}
	return out
}
