// Package detector evaluates pool history against the configured anomaly
// rules. Evaluation is a pure computation over the snapshot window: the
// same history yields the same result, and all side effects (dispatch,
// suppression counting, logging) belong to the caller.
package detector

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/alerting"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/history"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// Thresholds 描述单个池生效的检测阈值。非正的百分比或窗口视为停用
// 对应检查; PausedAfter 非正表示暂停即告警。
type Thresholds struct {
	ReserveDropPct     decimal.Decimal
	ReserveDropWindow  time.Duration
	PriceSpikePct      decimal.Decimal
	PriceSpikeWindow   time.Duration
	SupplyChangePct    decimal.Decimal
	SupplyChangeWindow time.Duration
	MinReserveUSD      decimal.Decimal
	MaxTreasuryFeesUSD decimal.Decimal
	PausedAfter        time.Duration
	TolerancePct       decimal.Decimal
}

// Result is the outcome of one evaluation pass. Suppressed lists the
// kinds whose checks were withheld because of the flat phase; the caller
// turns those into counter increments. InvariantSkip names why the ratio
// validator produced no verdict ("flat_phase", "zero_values"), empty when
// it actually ran.
type Result struct {
	Alerts        []alerting.Alert
	Suppressed    []alerting.Kind
	InvariantSkip string
}

// Detector runs the anomaly rules for a single pool. Alerts inherit their
// pool identity from the snapshots themselves.
type Detector struct {
	th        Thresholds
	invariant *InvariantValidator
}

// New 构造池级检测器。
func New(th Thresholds) *Detector {
	return &Detector{
		th:        th,
		invariant: NewInvariantValidator(th.TolerancePct),
	}
}

var hundred = decimal.NewFromInt(100)

// pctChange returns (to-from)/from in percent. Baselines at or below zero
// yield no comparison.
func pctChange(from, to decimal.Decimal) (decimal.Decimal, bool) {
	if from.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return to.Sub(from).Div(from).Mul(hundred), true
}

// Evaluate runs every rule against the ring. The newest entry is the
// snapshot under test; older entries provide the windowed baselines.
// With fewer than two snapshots nothing fires: one data point gives no
// basis for judging change, so startup stays silent.
func (d *Detector) Evaluate(ring *history.Ring) Result {
	var res Result
	if ring == nil || ring.Len() < 2 {
		return res
	}
	latest := ring.Latest()
	now := latest.Timestamp

	// Operational checks run in every phase.
	if latest.Paused {
		since, dur := pausedRun(ring)
		if d.th.PausedAfter <= 0 || dur > d.th.PausedAfter {
			msg := "pool trading is paused"
			if dur > 0 {
				msg = fmt.Sprintf("pool trading paused for %s", dur)
			}
			res.Alerts = append(res.Alerts, alerting.New(alerting.KindPaused, latest, nil, msg,
				alerting.PausedPayload{Since: since, For: dur}))
		}
	}
	if d.th.MaxTreasuryFeesUSD.Sign() > 0 && latest.TreasuryFeesUSD.GreaterThan(d.th.MaxTreasuryFeesUSD) {
		res.Alerts = append(res.Alerts, alerting.New(alerting.KindHighFees, latest, nil,
			fmt.Sprintf("accrued treasury fees %s USD exceed limit %s USD",
				latest.TreasuryFeesUSD.StringFixed(2), d.th.MaxTreasuryFeesUSD.StringFixed(2)),
			alerting.ThresholdPayload{
				Metric:    "treasury_fees_usd",
				Value:     latest.TreasuryFeesUSD,
				Threshold: d.th.MaxTreasuryFeesUSD,
			}))
	}

	if latest.Phase == state.PhaseFlat {
		// During the flat bootstrap the contract pins the price, so
		// reserve and price movement is expected. The economic checks are
		// not evaluated at all; each enabled one counts as suppressed for
		// this tick.
		if d.th.ReserveDropPct.Sign() > 0 && d.th.ReserveDropWindow > 0 {
			res.Suppressed = append(res.Suppressed, alerting.KindReserveDrop)
		}
		if d.th.PriceSpikePct.Sign() > 0 && d.th.PriceSpikeWindow > 0 {
			res.Suppressed = append(res.Suppressed, alerting.KindPriceSpike)
		}
		if d.th.SupplyChangePct.Sign() > 0 && d.th.SupplyChangeWindow > 0 {
			res.Suppressed = append(res.Suppressed, alerting.KindSupplyAnomaly)
		}
		if d.th.MinReserveUSD.Sign() > 0 {
			res.Suppressed = append(res.Suppressed, alerting.KindLowReserve)
		}
	} else {
		d.evaluateEconomic(ring, latest, now, &res)
	}

	// Always invoked; the validator itself is a no-op outside curve
	// pricing.
	if reason := d.invariant.skipReason(latest); reason != "" {
		res.InvariantSkip = reason
	} else if alert, ok := d.invariant.Check(latest); ok {
		res.Alerts = append(res.Alerts, alert)
	}

	return res
}

// evaluateEconomic runs the curve-phase checks against their windowed
// baselines.
func (d *Detector) evaluateEconomic(ring *history.Ring, latest *state.Snapshot, now time.Time, res *Result) {
	if d.th.ReserveDropPct.Sign() > 0 && d.th.ReserveDropWindow > 0 {
		if base := ring.EarliestWithin(d.th.ReserveDropWindow, now); base != nil {
			if change, ok := pctChange(base.ReserveUSD, latest.ReserveUSD); ok &&
				change.LessThanOrEqual(d.th.ReserveDropPct.Neg()) {
				res.Alerts = append(res.Alerts, alerting.New(alerting.KindReserveDrop, latest, base,
					fmt.Sprintf("reserve dropped %s%% within %s", change.Abs().StringFixed(2), d.th.ReserveDropWindow),
					alerting.DeltaPayload{
						Metric:    "reserve_usd",
						From:      base.ReserveUSD,
						To:        latest.ReserveUSD,
						ChangePct: change,
						Window:    d.th.ReserveDropWindow,
					}))
			}
		}
	}

	if d.th.PriceSpikePct.Sign() > 0 && d.th.PriceSpikeWindow > 0 {
		if base := ring.EarliestWithin(d.th.PriceSpikeWindow, now); base != nil {
			if change, ok := pctChange(base.PriceUSD, latest.PriceUSD); ok &&
				change.Abs().GreaterThanOrEqual(d.th.PriceSpikePct) {
				res.Alerts = append(res.Alerts, alerting.New(alerting.KindPriceSpike, latest, base,
					fmt.Sprintf("spot price moved %s%% within %s", change.StringFixed(2), d.th.PriceSpikeWindow),
					alerting.DeltaPayload{
						Metric:    "price_usd",
						From:      base.PriceUSD,
						To:        latest.PriceUSD,
						ChangePct: change,
						Window:    d.th.PriceSpikeWindow,
					}))
			}
		}
	}

	if d.th.SupplyChangePct.Sign() > 0 && d.th.SupplyChangeWindow > 0 {
		if base := ring.EarliestWithin(d.th.SupplyChangeWindow, now); base != nil {
			if change, ok := pctChange(base.TokenSupplyUnits, latest.TokenSupplyUnits); ok &&
				change.Abs().GreaterThanOrEqual(d.th.SupplyChangePct) {
				res.Alerts = append(res.Alerts, alerting.New(alerting.KindSupplyAnomaly, latest, base,
					fmt.Sprintf("token supply changed %s%% within %s", change.StringFixed(2), d.th.SupplyChangeWindow),
					alerting.DeltaPayload{
						Metric:    "token_supply",
						From:      base.TokenSupplyUnits,
						To:        latest.TokenSupplyUnits,
						ChangePct: change,
						Window:    d.th.SupplyChangeWindow,
					}))
			}
		}
	}

	if d.th.MinReserveUSD.Sign() > 0 && latest.ReserveUSD.LessThan(d.th.MinReserveUSD) {
		res.Alerts = append(res.Alerts, alerting.New(alerting.KindLowReserve, latest, nil,
			fmt.Sprintf("reserve %s USD below minimum %s USD",
				latest.ReserveUSD.StringFixed(2), d.th.MinReserveUSD.StringFixed(2)),
			alerting.ThresholdPayload{
				Metric:    "reserve_usd",
				Value:     latest.ReserveUSD,
				Threshold: d.th.MinReserveUSD,
			}))
	}
}

// pausedRun reports when the contiguous paused run ending at the newest
// snapshot began, and how long it has lasted. The run is bounded by the
// history window, so very old pauses measure from the oldest retained
// entry.
func pausedRun(ring *history.Ring) (time.Time, time.Duration) {
	snaps := ring.Snapshots()
	latest := snaps[len(snaps)-1].Timestamp
	since := latest
	for i := len(snaps) - 1; i >= 0 && snaps[i].Paused; i-- {
		since = snaps[i].Timestamp
	}
	return since, latest.Sub(since)
}
