// Package watcher keeps a live subscription on each pool's phase
// transition events. Events are the fast path: they alert and wake the
// poll loop immediately, while the next poll remains the authoritative
// source of pool state.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/alerting"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/chain"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/metrics"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// TickController is the part of the pool's scheduler the watcher pokes.
type TickController interface {
	Wake()
}

// Options tune the resubscribe backoff.
type Options struct {
	ResubscribeMin time.Duration
	ResubscribeMax time.Duration
}

// Watcher maintains one pool's event subscription for the process
// lifetime, resubscribing with exponential backoff when the stream drops.
type Watcher struct {
	pool       chain.PoolRef
	subscriber chain.LogSubscriber
	cell       *state.PhaseCell
	ticker     TickController
	dispatcher *alerting.Dispatcher
	metrics    *metrics.Metrics
	opts       Options
	logger     zerolog.Logger
}

// New 构造池级事件监听器。metrics 可为 nil。
func New(pool chain.PoolRef, subscriber chain.LogSubscriber, cell *state.PhaseCell, ticker TickController,
	dispatcher *alerting.Dispatcher, m *metrics.Metrics, opts Options, logger zerolog.Logger) *Watcher {
	if opts.ResubscribeMin <= 0 {
		opts.ResubscribeMin = time.Second
	}
	if opts.ResubscribeMax < opts.ResubscribeMin {
		opts.ResubscribeMax = time.Minute
	}
	return &Watcher{
		pool:       pool,
		subscriber: subscriber,
		cell:       cell,
		ticker:     ticker,
		dispatcher: dispatcher,
		metrics:    m,
		opts:       opts,
		logger:     logger.With().Str("component", "phase_watcher").Str("pool", pool.Name).Logger(),
	}
}

// Run blocks until ctx is cancelled, keeping the subscription alive.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := w.opts.ResubscribeMin
	for {
		logs := make(chan types.Log, 16)
		sub, err := w.subscriber.SubscribePhaseLogs(ctx, w.pool, logs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("订阅 phase 事件失败")
			if !w.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = w.nextBackoff(backoff)
			w.countResubscribe()
			continue
		}

		w.logger.Info().Msg("phase 事件订阅已建立")
		backoff = w.opts.ResubscribeMin

		err = w.consume(ctx, sub, logs)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("phase 事件订阅中断")
		if !w.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = w.nextBackoff(backoff)
		w.countResubscribe()
	}
}

func (w *Watcher) consume(ctx context.Context, sub chain.Subscription, logs <-chan types.Log) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case lg := <-logs:
			w.handleLog(ctx, lg)
		}
	}
}

func (w *Watcher) handleLog(ctx context.Context, lg types.Log) {
	evt, err := chain.DecodePhaseEvent(w.pool.Name, lg)
	if err != nil {
		w.logger.Warn().Err(err).Uint64("block", lg.BlockNumber).Msg("丢弃无法解码的事件")
		return
	}

	if evt.Removed {
		// A reorg dropped the transition. The cached phase can no longer
		// be trusted; the next poll re-reads the truth.
		w.cell.Invalidate()
		w.ticker.Wake()
		w.logger.Warn().Uint64("block", evt.BlockHeight).Msg("phase 事件被重组移除, 触发立即轮询")
		return
	}

	if cached, ok := w.cell.Load(); ok && cached == evt.To {
		// The poll loop already saw this phase; avoid a second alert.
		w.ticker.Wake()
		return
	}

	w.cell.Store(evt.To)

	alert := alerting.NewFromEvent(w.pool.Name, alerting.KindPhaseTransition, evt.To,
		evt.ChainTime, evt.BlockHeight,
		fmt.Sprintf("phase transition %s -> %s", evt.From, evt.To),
		alerting.TransitionPayload{
			From:    evt.From,
			To:      evt.To,
			Source:  "event",
			Reserve: state.WeiToUnits(evt.Reserve),
		})
	w.dispatcher.Dispatch(ctx, alert)

	w.ticker.Wake()
}

func (w *Watcher) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Watcher) nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > w.opts.ResubscribeMax {
		next = w.opts.ResubscribeMax
	}
	return next
}

func (w *Watcher) countResubscribe() {
	if w.metrics != nil {
		w.metrics.ResubscribesTotal.WithLabelValues(w.pool.Name).Inc()
	}
}
