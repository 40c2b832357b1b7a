package detector

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/alerting"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// DefaultTolerancePct is the allowed deviation between the actual reserve
// ratio and the CRR target before the invariant counts as violated.
const DefaultTolerancePct = 5

const ppmDenominator = 1_000_000

// InvariantValidator checks the bonding-curve supply invariant
//
//	reserve ≈ CRR × price × supply
//
// by comparing the snapshot's reserve ratio against the CRR expressed as
// a fraction. The invariant only holds under curve pricing; in the flat
// phase the contract pins the price independent of reserves, so Check is
// a no-op there.
type InvariantValidator struct {
	tolerancePct decimal.Decimal
}

// NewInvariantValidator 构造储备率校验器。非正容差回退到默认 5%。
func NewInvariantValidator(tolerancePct decimal.Decimal) *InvariantValidator {
	if tolerancePct.Sign() <= 0 {
		tolerancePct = decimal.NewFromInt(DefaultTolerancePct)
	}
	return &InvariantValidator{tolerancePct: tolerancePct}
}

// skipReason 返回不做校验的原因, 空串表示正常校验。
func (v *InvariantValidator) skipReason(snap *state.Snapshot) string {
	if snap == nil || snap.Phase != state.PhaseBondingCurve {
		return "flat_phase"
	}
	if snap.CRRPPM == 0 || snap.ReserveBalance.Sign() == 0 ||
		snap.SpotPrice.Sign() == 0 || snap.TokenSupply.Sign() == 0 {
		return "zero_values"
	}
	return ""
}

// Check validates one snapshot. A zero reserve, price, supply or CRR
// yields no verdict: the ratio is undefined on an unseeded pool.
func (v *InvariantValidator) Check(snap *state.Snapshot) (alerting.Alert, bool) {
	if v.skipReason(snap) != "" {
		return alerting.Alert{}, false
	}

	expected := decimal.NewFromUint64(snap.CRRPPM).Div(decimal.NewFromInt(ppmDenominator))
	actual := snap.ReserveRatio
	deviation := actual.Sub(expected).Div(expected).Mul(hundred).Abs()
	if deviation.LessThanOrEqual(v.tolerancePct) {
		return alerting.Alert{}, false
	}

	msg := fmt.Sprintf("reserve ratio %s deviates %s%% from CRR target %s",
		actual.StringFixed(6), deviation.StringFixed(2), expected.StringFixed(6))
	return alerting.New(alerting.KindSupplyInvariant, snap, nil, msg,
		alerting.InvariantPayload{
			ExpectedRatio: expected,
			ActualRatio:   actual,
			DeviationPct:  deviation,
			TolerancePct:  v.tolerancePct,
		}), true
}
