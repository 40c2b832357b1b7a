package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/alerting"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/detector"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/history"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/service"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// SimulateAlert 构造两个合成快照并走一遍完整的检测与告警链路，
// 用于验证阈值配置和通知通道。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	pool, poolCfg, err := a.poolRef(opts.Pool)
	if err != nil {
		return err
	}

	phase, err := state.ParsePhase(opts.Phase)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	baseline := syntheticSnapshot(pool.Name, now.Add(-5*time.Minute), 1, phase, opts, opts.ReserveFrom)
	current := syntheticSnapshot(pool.Name, now, 2, phase, opts, opts.ReserveTo)

	ring := history.NewRing(2)
	if err := ring.Append(baseline); err != nil {
		return err
	}
	if err := ring.Append(current); err != nil {
		return err
	}

	det := detector.New(service.ThresholdsFromConfig(a.Config.PoolThresholds(poolCfg)))
	res := det.Evaluate(ring)

	dispatcher := alerting.NewDispatcher(a.newSinks(), alerting.NewSuppressionCounters(), nil, a.Logger)
	for _, kind := range res.Suppressed {
		dispatcher.NoteSuppressed(pool.Name, kind)
	}
	dispatcher.DispatchBatch(ctx, res.Alerts)

	if len(res.Alerts) == 0 && len(res.Suppressed) == 0 {
		a.Logger.Info().Msg("模拟未触发任何告警")
	} else {
		a.Logger.Info().Int("alerts", len(res.Alerts)).Int("suppressed", len(res.Suppressed)).Msg("模拟完成")
	}
	return nil
}

// syntheticSnapshot 以整币单位构造快照。CRR 置零以跳过储备率校验，
// 模拟只针对阈值类告警。
func syntheticSnapshot(pool string, ts time.Time, height uint64, phase state.Phase, opts SimulateOptions, reserve float64) *state.Snapshot {
	return state.NewSnapshot(state.SnapshotInput{
		Pool:           pool,
		Timestamp:      ts,
		BlockHeight:    height,
		ReserveBalance: state.UnitsToWei(decimal.NewFromFloat(reserve)),
		SpotPrice:      state.UnitsToWei(decimal.NewFromFloat(opts.Price)),
		TokenSupply:    state.UnitsToWei(decimal.NewFromFloat(opts.Supply)),
		TreasuryFees:   state.UnitsToWei(decimal.NewFromFloat(opts.Fees)),
		Paused:         opts.Paused,
		Phase:          phase,
	})
}
