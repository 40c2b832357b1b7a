// Package alerting carries anomaly alerts from the detection pipeline to
// the configured delivery sinks and tracks phase-based suppression.
package alerting

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// Kind 标识告警类别。
type Kind string

const (
	KindReserveDrop     Kind = "reserve_drop"
	KindPriceSpike      Kind = "price_spike"
	KindSupplyAnomaly   Kind = "supply_anomaly"
	KindLowReserve      Kind = "low_reserve"
	KindHighFees        Kind = "high_fees"
	KindPaused          Kind = "pool_paused"
	KindSupplyInvariant Kind = "supply_invariant_violation"
	KindPhaseTransition Kind = "phase_transition"
)

// Priority 标识告警级别。
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
)

// PriorityFor returns the fixed priority of an alert kind. Unknown kinds
// map to medium.
func PriorityFor(kind Kind) Priority {
	switch kind {
	case KindPaused, KindSupplyInvariant:
		return PriorityCritical
	case KindReserveDrop, KindPriceSpike, KindSupplyAnomaly, KindLowReserve:
		return PriorityHigh
	case KindHighFees, KindPhaseTransition:
		return PriorityMedium
	default:
		return PriorityMedium
	}
}

// Payload holds the kind-specific numbers behind an alert. The union is
// sealed; sinks switch over the concrete types when rendering.
type Payload interface {
	isPayload()
}

// DeltaPayload describes a windowed change of a single metric.
type DeltaPayload struct {
	Metric    string
	From      decimal.Decimal
	To        decimal.Decimal
	ChangePct decimal.Decimal
	Window    time.Duration
}

// MarshalJSON reports the window in whole seconds.
func (p DeltaPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Metric        string          `json:"metric"`
		From          decimal.Decimal `json:"from"`
		To            decimal.Decimal `json:"to"`
		ChangePct     decimal.Decimal `json:"change_pct"`
		WindowSeconds int64           `json:"window_seconds"`
	}{p.Metric, p.From, p.To, p.ChangePct, int64(p.Window / time.Second)})
}

// ThresholdPayload describes an absolute level crossing a configured bound.
type ThresholdPayload struct {
	Metric    string          `json:"metric"`
	Value     decimal.Decimal `json:"value"`
	Threshold decimal.Decimal `json:"threshold"`
}

// InvariantPayload carries the reserve-ratio arithmetic behind a supply
// invariant violation.
type InvariantPayload struct {
	ExpectedRatio decimal.Decimal `json:"expected_ratio"`
	ActualRatio   decimal.Decimal `json:"actual_ratio"`
	DeviationPct  decimal.Decimal `json:"deviation_pct"`
	TolerancePct  decimal.Decimal `json:"tolerance_pct"`
}

// PausedPayload reports how long the pool has been observed paused.
type PausedPayload struct {
	Since time.Time
	For   time.Duration
}

// MarshalJSON reports the paused span in whole seconds.
func (p PausedPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Since         time.Time `json:"since"`
		PausedSeconds int64     `json:"paused_seconds"`
	}{p.Since, int64(p.For / time.Second)})
}

// TransitionPayload describes a regime change between pricing phases.
type TransitionPayload struct {
	From    state.Phase     `json:"from"`
	To      state.Phase     `json:"to"`
	Source  string          `json:"source"` // "event" or "poll"
	Reserve decimal.Decimal `json:"reserve"`
}

func (DeltaPayload) isPayload()      {}
func (ThresholdPayload) isPayload()  {}
func (InvariantPayload) isPayload()  {}
func (PausedPayload) isPayload()     {}
func (TransitionPayload) isPayload() {}

// Alert 封装一次异常检测结果及其上下文。Current 指向触发告警的快照,
// Previous 指向窗口基准快照; 事件快路径产生的告警两者均为 nil。
type Alert struct {
	Pool        string
	Kind        Kind
	Priority    Priority
	Phase       state.Phase
	Timestamp   time.Time
	BlockHeight uint64
	Message     string
	Payload     Payload
	Current     *state.Snapshot
	Previous    *state.Snapshot
}

// New builds an alert from the snapshot that triggered it. previous is
// the comparison baseline and may be nil.
func New(kind Kind, current, previous *state.Snapshot, msg string, payload Payload) Alert {
	return Alert{
		Pool:        current.Pool,
		Kind:        kind,
		Priority:    PriorityFor(kind),
		Phase:       current.Phase,
		Timestamp:   current.Timestamp,
		BlockHeight: current.BlockHeight,
		Message:     msg,
		Payload:     payload,
		Current:     current,
		Previous:    previous,
	}
}

// NewFromEvent builds an alert from decoded event fields, for paths that
// have no snapshot at hand.
func NewFromEvent(pool string, kind Kind, phase state.Phase, ts time.Time, height uint64, msg string, payload Payload) Alert {
	return Alert{
		Pool:        pool,
		Kind:        kind,
		Priority:    PriorityFor(kind),
		Phase:       phase,
		Timestamp:   ts,
		BlockHeight: height,
		Message:     msg,
		Payload:     payload,
	}
}
