package state

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// tokenDecimals is the fixed-point scale of every amount the monitor reads
// from the pool contract (reserve, spot price, supply, treasury fees).
const tokenDecimals = 18

// ImmutableParams holds contract constants that never change after
// deployment. They are fetched once per pool and cached for the process
// lifetime.
type ImmutableParams struct {
	FlatCurveThreshold *big.Int
	FlatCurvePrice     *big.Int
}

// SnapshotInput carries the raw results of one batched chain read plus the
// context needed to derive USD-valued fields.
type SnapshotInput struct {
	Pool        string
	Address     string
	Timestamp   time.Time
	BlockHeight uint64

	ReserveBalance *big.Int
	SpotPrice      *big.Int
	TokenSupply    *big.Int
	TreasuryFees   *big.Int
	CRRPPM         uint64
	Paused         bool
	Phase          Phase

	Params ImmutableParams

	// ReserveUSDRate prices one whole reserve token in USD. Non-positive
	// values fall back to 1 (stable reserve asset).
	ReserveUSDRate decimal.Decimal
}

// Snapshot is an immutable point-in-time record of one pool's on-chain
// state. It is created once per tick by the chain reader and owned by the
// pool's history ring afterwards; no field may be modified after
// construction.
type Snapshot struct {
	Pool        string
	Address     string
	Timestamp   time.Time
	BlockHeight uint64

	ReserveBalance *big.Int
	SpotPrice      *big.Int
	TokenSupply    *big.Int
	TreasuryFees   *big.Int
	CRRPPM         uint64
	Paused         bool
	Phase          Phase

	FlatCurveThreshold *big.Int
	FlatCurvePrice     *big.Int

	// Derived fields, computed once at construction.
	ReserveUSD       decimal.Decimal
	PriceUSD         decimal.Decimal
	MarketCapUSD     decimal.Decimal
	TreasuryFeesUSD  decimal.Decimal
	ReserveRatio     decimal.Decimal
	TokenSupplyUnits decimal.Decimal
}

// NewSnapshot assembles a snapshot and computes its derived fields.
func NewSnapshot(in SnapshotInput) *Snapshot {
	rate := in.ReserveUSDRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}

	reserve := decimal.NewFromBigInt(bigOrZero(in.ReserveBalance), -tokenDecimals)
	price := decimal.NewFromBigInt(bigOrZero(in.SpotPrice), -tokenDecimals)
	supply := decimal.NewFromBigInt(bigOrZero(in.TokenSupply), -tokenDecimals)
	fees := decimal.NewFromBigInt(bigOrZero(in.TreasuryFees), -tokenDecimals)

	snap := &Snapshot{
		Pool:        in.Pool,
		Address:     in.Address,
		Timestamp:   in.Timestamp,
		BlockHeight: in.BlockHeight,

		ReserveBalance: bigOrZero(in.ReserveBalance),
		SpotPrice:      bigOrZero(in.SpotPrice),
		TokenSupply:    bigOrZero(in.TokenSupply),
		TreasuryFees:   bigOrZero(in.TreasuryFees),
		CRRPPM:         in.CRRPPM,
		Paused:         in.Paused,
		Phase:          in.Phase,

		FlatCurveThreshold: bigOrZero(in.Params.FlatCurveThreshold),
		FlatCurvePrice:     bigOrZero(in.Params.FlatCurvePrice),

		ReserveUSD:       reserve.Mul(rate),
		PriceUSD:         price.Mul(rate),
		MarketCapUSD:     price.Mul(supply).Mul(rate),
		TreasuryFeesUSD:  fees.Mul(rate),
		TokenSupplyUnits: supply,
	}

	// reserveRatio = reserve / (spotPrice × tokenSupply); zero when the
	// denominator is zero so uninitialised pools never divide by zero.
	denom := price.Mul(supply)
	if !denom.IsZero() {
		snap.ReserveRatio = reserve.Div(denom)
	}

	return snap
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// WeiToUnits converts a raw contract amount to whole-token units.
func WeiToUnits(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(bigOrZero(v), -tokenDecimals)
}

// UnitsToWei converts whole-token units to the raw contract scale.
func UnitsToWei(v decimal.Decimal) *big.Int {
	return v.Shift(tokenDecimals).BigInt()
}
