// Package history keeps the rolling in-memory window of pool snapshots
// that anomaly detection reads its baselines from.
package history

import (
	"errors"
	"time"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// DefaultCapacity bounds the per-pool window. At a 10s poll interval this
// covers roughly 50 minutes of history.
const DefaultCapacity = 300

// ErrNonMonotonic is returned by Append when a snapshot would move time
// backwards relative to the newest entry.
var ErrNonMonotonic = errors.New("history: snapshot out of order")

// Ring is a fixed-capacity FIFO of snapshots for a single pool. Appending
// beyond capacity evicts the oldest entry. A Ring is owned by one pool
// goroutine and is not safe for concurrent use.
type Ring struct {
	buf   []*state.Snapshot
	head  int // index of the oldest entry
	count int
}

// NewRing returns an empty ring. Non-positive capacities fall back to
// DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]*state.Snapshot, capacity)}
}

// Append adds snap as the newest entry, evicting the oldest when full.
// The timestamp must be strictly greater and the block height no lower
// than the newest entry; otherwise the ring is left untouched and
// ErrNonMonotonic is returned.
func (r *Ring) Append(snap *state.Snapshot) error {
	if snap == nil {
		return errors.New("history: nil snapshot")
	}
	if last := r.Latest(); last != nil {
		if !snap.Timestamp.After(last.Timestamp) || snap.BlockHeight < last.BlockHeight {
			return ErrNonMonotonic
		}
	}
	pos := (r.head + r.count) % len(r.buf)
	r.buf[pos] = snap
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
	return nil
}

// Len reports the number of stored snapshots.
func (r *Ring) Len() int { return r.count }

// Capacity reports the fixed size of the ring.
func (r *Ring) Capacity() int { return len(r.buf) }

// Latest returns the newest snapshot, or nil when empty.
func (r *Ring) Latest() *state.Snapshot {
	if r.count == 0 {
		return nil
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)]
}

// Previous returns the entry immediately before the newest one, or nil
// when fewer than two snapshots are stored.
func (r *Ring) Previous() *state.Snapshot {
	if r.count < 2 {
		return nil
	}
	return r.buf[(r.head+r.count-2)%len(r.buf)]
}

// EarliestWithin returns the oldest snapshot taken at or after now-window,
// which serves as the comparison baseline for windowed detectors. It
// returns nil when no entry falls inside the window.
func (r *Ring) EarliestWithin(window time.Duration, now time.Time) *state.Snapshot {
	if r.count == 0 || window <= 0 {
		return nil
	}
	cutoff := now.Add(-window)
	for i := 0; i < r.count; i++ {
		s := r.buf[(r.head+i)%len(r.buf)]
		if !s.Timestamp.Before(cutoff) {
			return s
		}
	}
	return nil
}

// Snapshots returns the stored entries oldest-first. The slice is a copy;
// the snapshots themselves are shared and must be treated as immutable.
func (r *Ring) Snapshots() []*state.Snapshot {
	out := make([]*state.Snapshot, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
