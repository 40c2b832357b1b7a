// Package service wires the monitor together: one poll loop per pool,
// optional event watchers, shared alert dispatch and suppression state.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/alerting"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/chain"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/config"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/detector"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/history"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/metrics"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/phase"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/scheduler"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/storage"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/watcher"
)

// Service orchestrates snapshot polling, detection, and alerting for all
// configured pools.
type Service struct {
	cfg        *config.Config
	reader     chain.SnapshotReader
	subscriber chain.LogSubscriber
	dispatcher *alerting.Dispatcher
	store      storage.SnapshotStore
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	pools      []*poolTask
}

// poolTask bundles the per-pool moving parts. Each task is owned by its
// own goroutine; only the phase cell and the dispatcher's counters are
// shared with other goroutines.
type poolTask struct {
	ref      chain.PoolRef
	ring     *history.Ring
	cell     *state.PhaseCell
	detector *detector.Detector
	sched    *scheduler.Scheduler
	logger   zerolog.Logger
}

// New constructs the monitoring service. subscriber, store and m may be
// nil, which disables the event fast path, the archive and metrics
// respectively.
func New(cfg *config.Config, reader chain.SnapshotReader, subscriber chain.LogSubscriber,
	dispatcher *alerting.Dispatcher, store storage.SnapshotStore, m *metrics.Metrics, logger zerolog.Logger) *Service {
	s := &Service{
		cfg:        cfg,
		reader:     reader,
		subscriber: subscriber,
		dispatcher: dispatcher,
		store:      store,
		metrics:    m,
		logger:     logger.With().Str("component", "service").Logger(),
	}

	for _, p := range cfg.Pools {
		th := ThresholdsFromConfig(cfg.PoolThresholds(p))
		task := &poolTask{
			ref: chain.PoolRef{
				Name:           p.Name,
				Address:        p.Address,
				ReserveUSDRate: decimal.NewFromFloat(p.ReserveUSDRate),
			},
			ring:     history.NewRing(cfg.History.Capacity),
			cell:     &state.PhaseCell{},
			detector: detector.New(th),
			sched: scheduler.New(scheduler.Options{
				Interval:     cfg.Scheduler.Interval,
				AlignToStart: cfg.Scheduler.AlignToTick,
				StartupDelay: cfg.Scheduler.StartupDelay,
			}, logger.With().Str("pool", p.Name).Logger()),
			logger: s.logger.With().Str("pool", p.Name).Logger(),
		}
		s.pools = append(s.pools, task)
	}
	return s
}

// ThresholdsFromConfig converts merged config values into detector
// thresholds. Non-positive percentages stay non-positive, which the
// detector reads as disabled.
func ThresholdsFromConfig(tc config.ThresholdsConfig) detector.Thresholds {
	return detector.Thresholds{
		ReserveDropPct:     decimal.NewFromFloat(tc.ReserveDropPct),
		ReserveDropWindow:  tc.ReserveDropWindow,
		PriceSpikePct:      decimal.NewFromFloat(tc.PriceSpikePct),
		PriceSpikeWindow:   tc.PriceSpikeWindow,
		SupplyChangePct:    decimal.NewFromFloat(tc.SupplyChangePct),
		SupplyChangeWindow: tc.SupplyChangeWindow,
		MinReserveUSD:      decimal.NewFromFloat(tc.MinReserveUSD),
		MaxTreasuryFeesUSD: decimal.NewFromFloat(tc.MaxTreasuryFeesUSD),
		PausedAfter:        tc.PausedAfter,
		TolerancePct:       decimal.NewFromFloat(tc.TolerancePct),
	}
}

// Run starts every pool loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if len(s.pools) == 0 {
		return errors.New("no pools configured")
	}

	var wg sync.WaitGroup
	for _, task := range s.pools {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = task.sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
				return s.processTick(ctx, task)
			})
		}()

		if s.subscriber != nil {
			w := watcher.New(task.ref, s.subscriber, task.cell, task.sched,
				s.dispatcher, s.metrics, watcher.Options{}, s.logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = w.Run(ctx)
			}()
		}
	}

	s.logger.Info().Int("pools", len(s.pools)).Bool("events", s.subscriber != nil).Msg("monitor started")
	wg.Wait()
	return ctx.Err()
}

// processTick runs one complete poll for one pool: fetch, classify,
// record, detect, dispatch.
func (s *Service) processTick(ctx context.Context, task *poolTask) error {
	started := time.Now()
	snap, err := s.reader.FetchSnapshot(ctx, task.ref)
	if s.metrics != nil {
		s.metrics.PollDuration.WithLabelValues(task.ref.Name).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		s.countPoll(task, "error")
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	decision := phase.Classify(snap.Phase, snap.ReserveBalance, snap.FlatCurveThreshold)
	if decision.Disagreement {
		task.logger.Warn().
			Str("flag", snap.Phase.String()).
			Str("expected", decision.Expected.String()).
			Str("reserve", snap.ReserveBalance.String()).
			Msg("链上 phase 标志与储备阈值不一致, 以标志为准")
	}

	s.notePhase(ctx, task, snap)

	if err := task.ring.Append(snap); err != nil {
		if errors.Is(err, history.ErrNonMonotonic) {
			// Woken and scheduled ticks can observe the same block.
			task.logger.Debug().Uint64("block", snap.BlockHeight).Msg("no new block since last poll")
			s.countPoll(task, "stale")
			return nil
		}
		s.countPoll(task, "error")
		return err
	}

	if s.store != nil {
		if err := s.store.InsertSnapshot(ctx, storage.RecordFromSnapshot(snap)); err != nil {
			task.logger.Error().Err(err).Uint64("block", snap.BlockHeight).Msg("failed to archive snapshot")
		}
	}

	s.recordGauges(task, snap)

	res := task.detector.Evaluate(task.ring)
	if res.InvariantSkip != "" {
		task.logger.Debug().Str("reason", res.InvariantSkip).Msg("invariant check skipped")
	}
	for _, kind := range res.Suppressed {
		s.dispatcher.NoteSuppressed(task.ref.Name, kind)
	}
	s.dispatcher.DispatchBatch(ctx, res.Alerts)

	task.logger.Info().
		Uint64("block", snap.BlockHeight).
		Str("phase", snap.Phase.String()).
		Str("reserve_usd", snap.ReserveUSD.StringFixed(2)).
		Str("price_usd", snap.PriceUSD.StringFixed(6)).
		Int("alerts", len(res.Alerts)).
		Int("suppressed", len(res.Suppressed)).
		Msg("snapshot recorded")
	s.countPoll(task, "ok")
	return nil
}

// notePhase reconciles the polled phase with the event cache and emits
// the poll-path transition alert when the event stream has not already
// covered the change.
func (s *Service) notePhase(ctx context.Context, task *poolTask, snap *state.Snapshot) {
	prev := task.ring.Latest()
	if prev != nil && prev.Phase != snap.Phase {
		if cached, ok := task.cell.Load(); !ok || cached != snap.Phase {
			s.dispatcher.Dispatch(ctx, alerting.New(alerting.KindPhaseTransition, snap, prev,
				fmt.Sprintf("phase transition %s -> %s", prev.Phase, snap.Phase),
				alerting.TransitionPayload{
					From:    prev.Phase,
					To:      snap.Phase,
					Source:  "poll",
					Reserve: state.WeiToUnits(snap.ReserveBalance),
				}))
		} else {
			task.logger.Debug().Msg("phase transition already alerted via event")
		}
	}
	task.cell.Store(snap.Phase)
}

func (s *Service) recordGauges(task *poolTask, snap *state.Snapshot) {
	if s.metrics == nil {
		return
	}
	pool := task.ref.Name
	s.metrics.PhaseFlag.WithLabelValues(pool).Set(float64(snap.Phase))
	s.metrics.ReserveUSD.WithLabelValues(pool).Set(snap.ReserveUSD.InexactFloat64())
	s.metrics.SpotPriceUSD.WithLabelValues(pool).Set(snap.PriceUSD.InexactFloat64())
	s.metrics.ReserveRatio.WithLabelValues(pool).Set(snap.ReserveRatio.InexactFloat64())
	s.metrics.HistorySize.WithLabelValues(pool).Set(float64(task.ring.Len()))
}

func (s *Service) countPoll(task *poolTask, outcome string) {
	if s.metrics != nil {
		s.metrics.PollsTotal.WithLabelValues(task.ref.Name, outcome).Inc()
	}
}
