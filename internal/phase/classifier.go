// Package phase decides which pricing regime a pool is in and cross-checks
// the contract's own phase flag against its reserve threshold.
package phase

import (
	"math/big"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// Decision is the outcome of classifying one raw reading.
type Decision struct {
	// Phase is the regime the rest of the pipeline must use. It always
	// equals the on-chain flag, which is authoritative.
	Phase state.Phase

	// Expected is the regime implied by reserve vs. flatCurveThreshold.
	// Only meaningful when Checked is true.
	Expected state.Phase

	// Checked reports whether the threshold cross-check could run.
	Checked bool

	// Disagreement is set when the cross-check ran and contradicts the
	// flag. Callers surface this as a warning; it never changes Phase.
	Disagreement bool
}

// Classify resolves the pool phase from the authoritative on-chain flag
// and, when the immutable threshold is known, derives an expected phase
// from the reserve balance. Crossing the threshold exactly counts as
// bonding-curve.
func Classify(flag state.Phase, reserve, flatCurveThreshold *big.Int) Decision {
	d := Decision{Phase: flag}
	if reserve == nil || flatCurveThreshold == nil || flatCurveThreshold.Sign() <= 0 {
		return d
	}
	d.Checked = true
	if reserve.Cmp(flatCurveThreshold) >= 0 {
		d.Expected = state.PhaseBondingCurve
	} else {
		d.Expected = state.PhaseFlat
	}
	d.Disagreement = d.Expected != flag
	return d
}
