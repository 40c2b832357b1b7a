package state

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func wei(units int64) *big.Int {
	v := big.NewInt(units)
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestNewSnapshotDerivedFields(t *testing.T) {
	snap := NewSnapshot(SnapshotInput{
		Pool:           "hokusai-main",
		Timestamp:      time.Unix(1700000000, 0).UTC(),
		BlockHeight:    100,
		ReserveBalance: wei(13),
		SpotPrice:      wei(1),
		TokenSupply:    wei(100),
		TreasuryFees:   wei(2),
		CRRPPM:         100000,
		Phase:          PhaseBondingCurve,
		ReserveUSDRate: decimal.NewFromInt(1),
	})

	if !snap.ReserveUSD.Equal(decimal.NewFromInt(13)) {
		t.Fatalf("reserveUSD 期望 13, 实际 %s", snap.ReserveUSD)
	}
	if !snap.PriceUSD.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("priceUSD 期望 1, 实际 %s", snap.PriceUSD)
	}
	if !snap.MarketCapUSD.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("marketCapUSD 期望 100, 实际 %s", snap.MarketCapUSD)
	}
	if !snap.TreasuryFeesUSD.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("treasuryFeesUSD 期望 2, 实际 %s", snap.TreasuryFeesUSD)
	}
	// 13 / (1 × 100) = 0.13
	if !snap.ReserveRatio.Equal(decimal.NewFromFloat(0.13)) {
		t.Fatalf("reserveRatio 期望 0.13, 实际 %s", snap.ReserveRatio)
	}
}

func TestNewSnapshotAppliesReserveRate(t *testing.T) {
	snap := NewSnapshot(SnapshotInput{
		ReserveBalance: wei(10),
		SpotPrice:      wei(2),
		TokenSupply:    wei(5),
		ReserveUSDRate: decimal.NewFromFloat(0.5),
	})

	if !snap.ReserveUSD.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("reserveUSD 应按汇率折算: %s", snap.ReserveUSD)
	}
	// The ratio is rate-independent: 10 / (2 × 5) = 1.
	if !snap.ReserveRatio.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("reserveRatio 不应受汇率影响: %s", snap.ReserveRatio)
	}
}

func TestNewSnapshotZeroDenominator(t *testing.T) {
	snap := NewSnapshot(SnapshotInput{
		ReserveBalance: wei(10),
		SpotPrice:      wei(1),
		TokenSupply:    big.NewInt(0),
	})
	if !snap.ReserveRatio.IsZero() {
		t.Fatalf("supply 为零时 ratio 应为 0, 实际 %s", snap.ReserveRatio)
	}

	snap = NewSnapshot(SnapshotInput{
		ReserveBalance: wei(10),
		SpotPrice:      big.NewInt(0),
		TokenSupply:    wei(1),
	})
	if !snap.ReserveRatio.IsZero() {
		t.Fatalf("price 为零时 ratio 应为 0, 实际 %s", snap.ReserveRatio)
	}
}

func TestNewSnapshotNilAmounts(t *testing.T) {
	snap := NewSnapshot(SnapshotInput{})
	if snap.ReserveBalance == nil || snap.ReserveBalance.Sign() != 0 {
		t.Fatal("nil 金额应归一为 0")
	}
	if !snap.ReserveUSD.IsZero() || !snap.ReserveRatio.IsZero() {
		t.Fatal("空输入的派生字段应为 0")
	}
}

func TestUnitConversionRoundTrip(t *testing.T) {
	units := decimal.RequireFromString("123.456")
	if got := WeiToUnits(UnitsToWei(units)); !got.Equal(units) {
		t.Fatalf("换算应当可逆: %s != %s", got, units)
	}
	if WeiToUnits(nil).Sign() != 0 {
		t.Fatal("nil 金额应视为 0")
	}
}

func TestPhaseFromChain(t *testing.T) {
	if p, err := PhaseFromChain(0); err != nil || p != PhaseFlat {
		t.Fatalf("0 应映射为 flat: %v %v", p, err)
	}
	if p, err := PhaseFromChain(1); err != nil || p != PhaseBondingCurve {
		t.Fatalf("1 应映射为 bonding_curve: %v %v", p, err)
	}
	if _, err := PhaseFromChain(7); err == nil {
		t.Fatal("未知取值应报错")
	}
}

func TestParsePhase(t *testing.T) {
	for _, tok := range []string{"flat", "Flat", " FLAT "} {
		if p, err := ParsePhase(tok); err != nil || p != PhaseFlat {
			t.Fatalf("%q 应解析为 flat", tok)
		}
	}
	for _, tok := range []string{"curve", "bonding_curve", "bonding-curve"} {
		if p, err := ParsePhase(tok); err != nil || p != PhaseBondingCurve {
			t.Fatalf("%q 应解析为 bonding_curve", tok)
		}
	}
	if _, err := ParsePhase("linear"); err == nil {
		t.Fatal("未知 phase 应报错")
	}
}

func TestPhaseCell(t *testing.T) {
	var cell PhaseCell

	if _, ok := cell.Load(); ok {
		t.Fatal("空 cell 不应有值")
	}

	cell.Store(PhaseFlat)
	cell.Store(PhaseBondingCurve) // last writer wins
	if p, ok := cell.Load(); !ok || p != PhaseBondingCurve {
		t.Fatalf("期望 bonding_curve, 实际 %v ok=%v", p, ok)
	}

	cell.Invalidate()
	if _, ok := cell.Load(); ok {
		t.Fatal("Invalidate 后不应再有值")
	}
}
