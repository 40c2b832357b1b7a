package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// SubscribePhaseLogs opens a websocket subscription for the pool's
// PhaseTransition logs. Raw logs arrive on sink and are decoded with
// DecodePhaseEvent; lifecycle (errors, resubscribing) is the caller's.
func (r *Reader) SubscribePhaseLogs(ctx context.Context, pool PoolRef, sink chan<- types.Log) (Subscription, error) {
	client, err := r.getWSClient(ctx)
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(pool.Address)},
		Topics:    [][]common.Hash{{curvePoolABI.Events[phaseTransitionEvent].ID}},
	}
	sub, err := client.SubscribeFilterLogs(ctx, query, sink)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s logs: %w", pool.Name, err)
	}
	return sub, nil
}

// DecodePhaseEvent unpacks one PhaseTransition log into a PhaseEvent.
func DecodePhaseEvent(pool string, lg types.Log) (PhaseEvent, error) {
	outputs, err := curvePoolABI.Unpack(phaseTransitionEvent, lg.Data)
	if err != nil {
		return PhaseEvent{}, fmt.Errorf("unpack phase event: %w", err)
	}
	if len(outputs) != 4 {
		return PhaseEvent{}, fmt.Errorf("unexpected phase event shape: %d fields", len(outputs))
	}

	fromRaw, ok := outputs[0].(uint8)
	if !ok {
		return PhaseEvent{}, fmt.Errorf("failed to decode fromPhase")
	}
	toRaw, ok := outputs[1].(uint8)
	if !ok {
		return PhaseEvent{}, fmt.Errorf("failed to decode toPhase")
	}
	reserve, ok := outputs[2].(*big.Int)
	if !ok {
		return PhaseEvent{}, fmt.Errorf("failed to decode reserveBalance")
	}
	ts, ok := outputs[3].(*big.Int)
	if !ok {
		return PhaseEvent{}, fmt.Errorf("failed to decode timestamp")
	}

	from, err := state.PhaseFromChain(fromRaw)
	if err != nil {
		return PhaseEvent{}, err
	}
	to, err := state.PhaseFromChain(toRaw)
	if err != nil {
		return PhaseEvent{}, err
	}

	return PhaseEvent{
		Pool:        pool,
		From:        from,
		To:          to,
		Reserve:     reserve,
		ChainTime:   time.Unix(ts.Int64(), 0).UTC(),
		BlockHeight: lg.BlockNumber,
		Removed:     lg.Removed,
	}, nil
}

var _ LogSubscriber = (*Reader)(nil)
