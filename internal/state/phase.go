package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Phase identifies the pricing regime a pool is operating in.
type Phase uint8

const (
	// PhaseFlat is the fixed-price bootstrap regime.
	PhaseFlat Phase = iota
	// PhaseBondingCurve is the reserve-ratio pricing regime.
	PhaseBondingCurve
)

func (p Phase) String() string {
	switch p {
	case PhaseFlat:
		return "flat"
	case PhaseBondingCurve:
		return "bonding_curve"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// MarshalJSON encodes the phase by name rather than its numeric value.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// PhaseFromChain maps the contract's getCurrentPhase() value (0=flat,
// 1=bonding curve) into a Phase.
func PhaseFromChain(v uint8) (Phase, error) {
	switch v {
	case 0:
		return PhaseFlat, nil
	case 1:
		return PhaseBondingCurve, nil
	default:
		return PhaseFlat, fmt.Errorf("unknown on-chain phase value %d", v)
	}
}

// ParsePhase converts a CLI/config token into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat":
		return PhaseFlat, nil
	case "curve", "bonding_curve", "bonding-curve":
		return PhaseBondingCurve, nil
	}
	return PhaseFlat, fmt.Errorf("unknown phase %q", s)
}
