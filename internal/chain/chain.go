// Package chain reads bonding-curve pool state over Ethereum RPC and
// streams phase transition events over the websocket endpoint.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// PoolRef identifies one monitored pool contract.
type PoolRef struct {
	Name    string
	Address string

	// ReserveUSDRate overrides the reader-wide USD rate for this pool.
	// Zero means no override.
	ReserveUSDRate decimal.Decimal
}

// SnapshotReader retrieves consistent point-in-time pool snapshots.
type SnapshotReader interface {
	FetchSnapshot(ctx context.Context, pool PoolRef) (*state.Snapshot, error)
	FetchSnapshotAt(ctx context.Context, pool PoolRef, height uint64) (*state.Snapshot, error)
	LatestHeight(ctx context.Context) (uint64, error)
}

// PhaseEvent is one decoded PhaseTransition contract event.
type PhaseEvent struct {
	Pool        string
	From        state.Phase
	To          state.Phase
	Reserve     *big.Int
	ChainTime   time.Time
	BlockHeight uint64
	Removed     bool
}

// LogSubscriber opens a live subscription for phase transition logs.
type LogSubscriber interface {
	SubscribePhaseLogs(ctx context.Context, pool PoolRef, sink chan<- types.Log) (Subscription, error)
}

// Subscription mirrors the go-ethereum subscription surface the watcher
// needs, so tests can stand in for a live node.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}
