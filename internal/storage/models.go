package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

// SnapshotRecord is one archived pool observation. Amounts are stored in
// whole-token units; raw wei never leaves the process.
type SnapshotRecord struct {
	Pool         string
	Timestamp    time.Time
	BlockHeight  uint64
	Phase        string
	Paused       bool
	Reserve      decimal.Decimal
	SpotPrice    decimal.Decimal
	TokenSupply  decimal.Decimal
	TreasuryFees decimal.Decimal
	CRRPPM       uint64
	ReserveRatio decimal.Decimal
	ReserveUSD   decimal.Decimal
	PriceUSD     decimal.Decimal
	CreatedAt    time.Time
}

// RecordFromSnapshot converts an in-memory snapshot into its archive row.
func RecordFromSnapshot(s *state.Snapshot) SnapshotRecord {
	return SnapshotRecord{
		Pool:         s.Pool,
		Timestamp:    s.Timestamp,
		BlockHeight:  s.BlockHeight,
		Phase:        s.Phase.String(),
		Paused:       s.Paused,
		Reserve:      state.WeiToUnits(s.ReserveBalance),
		SpotPrice:    state.WeiToUnits(s.SpotPrice),
		TokenSupply:  s.TokenSupplyUnits,
		TreasuryFees: state.WeiToUnits(s.TreasuryFees),
		CRRPPM:       s.CRRPPM,
		ReserveRatio: s.ReserveRatio,
		ReserveUSD:   s.ReserveUSD,
		PriceUSD:     s.PriceUSD,
	}
}
