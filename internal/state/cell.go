package state

import "sync"

// PhaseCell is the shared per-pool "current phase" slot. The polling
// pipeline and the phase-transition watcher both write it with
// last-writer-wins semantics; both converge on the authoritative on-chain
// flag. The watcher additionally invalidates the cell so the next poll
// re-derives the phase instead of trusting a stale value.
type PhaseCell struct {
	mu    sync.Mutex
	phase Phase
	known bool
}

// Store records the latest observed phase.
func (c *PhaseCell) Store(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
	c.known = true
}

// Load returns the last stored phase and whether the cell holds a valid
// value.
func (c *PhaseCell) Load() (Phase, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase, c.known
}

// Invalidate clears the cell so the next Load reports no value.
func (c *PhaseCell) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known = false
}
