package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS pool_snapshots (
        pool          TEXT        NOT NULL,
        ts            TIMESTAMPTZ NOT NULL,
        block_height  BIGINT      NOT NULL,
        phase         TEXT        NOT NULL,
        paused        BOOLEAN     NOT NULL,
        reserve       NUMERIC     NOT NULL,
        spot_price    NUMERIC     NOT NULL,
        token_supply  NUMERIC     NOT NULL,
        treasury_fees NUMERIC     NOT NULL,
        crr_ppm       BIGINT      NOT NULL,
        reserve_ratio NUMERIC     NOT NULL,
        reserve_usd   NUMERIC     NOT NULL,
        price_usd     NUMERIC     NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (pool, ts)
    );
    CREATE INDEX IF NOT EXISTS pool_snapshots_height_idx
        ON pool_snapshots (pool, block_height);`

	insertSnapshotSQL = `INSERT INTO pool_snapshots (
        pool,
        ts,
        block_height,
        phase,
        paused,
        reserve,
        spot_price,
        token_supply,
        treasury_fees,
        crr_ppm,
        reserve_ratio,
        reserve_usd,
        price_usd
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (pool, ts) DO NOTHING;`

	listSnapshotsBetweenSQL = `SELECT
        pool,
        ts,
        block_height,
        phase,
        paused,
        reserve,
        spot_price,
        token_supply,
        treasury_fees,
        crr_ppm,
        reserve_ratio,
        reserve_usd,
        price_usd,
        created_at
    FROM pool_snapshots
    WHERE pool = $1
      AND ts >= $2
      AND ts < $3
    ORDER BY ts;`

	listRecentSnapshotsSQL = `SELECT
        pool,
        ts,
        block_height,
        phase,
        paused,
        reserve,
        spot_price,
        token_supply,
        treasury_fees,
        crr_ppm,
        reserve_ratio,
        reserve_usd,
        price_usd,
        created_at
    FROM pool_snapshots
    WHERE pool = $1
    ORDER BY ts DESC
    LIMIT $2;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM pool_snapshots WHERE pool = $1;`

	deleteSnapshotsBeforeSQL = `DELETE FROM pool_snapshots WHERE ts < $1;`
)

// EnsureSchema creates the archive table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, ensureSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// InsertSnapshot archives one snapshot. Replays of an already archived
// (pool, ts) pair are silently ignored.
func (s *Store) InsertSnapshot(ctx context.Context, rec SnapshotRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertSnapshotSQL,
		rec.Pool,
		rec.Timestamp,
		int64(rec.BlockHeight),
		rec.Phase,
		rec.Paused,
		rec.Reserve.String(),
		rec.SpotPrice.String(),
		rec.TokenSupply.String(),
		rec.TreasuryFees.String(),
		int64(rec.CRRPPM),
		rec.ReserveRatio.String(),
		rec.ReserveUSD.String(),
		rec.PriceUSD.String(),
	)
	if execErr != nil {
		return fmt.Errorf("insert snapshot: %w", execErr)
	}
	return nil
}

// ListSnapshotsBetween lists one pool's snapshots within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, poolName string, from, to time.Time) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, poolName, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	records := make([]SnapshotRecord, 0)
	for rows.Next() {
		rec, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListRecentSnapshots lists the most recent snapshots for one pool,
// newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, poolName string, limit int) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, poolName, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	records := make([]SnapshotRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountSnapshots counts archived snapshots for one pool.
func (s *Store) CountSnapshots(ctx context.Context, poolName string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL, poolName).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// DeleteSnapshotsBefore prunes the archive.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete snapshots before: %w", execErr)
	}
	return nil
}

func scanSnapshot(rows pgx.Rows) (SnapshotRecord, error) {
	var (
		rec         SnapshotRecord
		height      int64
		crrPPM      int64
		reserveStr  string
		priceStr    string
		supplyStr   string
		feesStr     string
		ratioStr    string
		reserveUSD  string
		priceUSDStr string
	)

	if err := rows.Scan(
		&rec.Pool,
		&rec.Timestamp,
		&height,
		&rec.Phase,
		&rec.Paused,
		&reserveStr,
		&priceStr,
		&supplyStr,
		&feesStr,
		&crrPPM,
		&ratioStr,
		&reserveUSD,
		&priceUSDStr,
		&rec.CreatedAt,
	); err != nil {
		return SnapshotRecord{}, err
	}

	rec.BlockHeight = uint64(height)
	rec.CRRPPM = uint64(crrPPM)

	var convErr error
	if rec.Reserve, convErr = decimal.NewFromString(reserveStr); convErr != nil {
		return SnapshotRecord{}, fmt.Errorf("parse reserve: %w", convErr)
	}
	if rec.SpotPrice, convErr = decimal.NewFromString(priceStr); convErr != nil {
		return SnapshotRecord{}, fmt.Errorf("parse spot price: %w", convErr)
	}
	if rec.TokenSupply, convErr = decimal.NewFromString(supplyStr); convErr != nil {
		return SnapshotRecord{}, fmt.Errorf("parse token supply: %w", convErr)
	}
	if rec.TreasuryFees, convErr = decimal.NewFromString(feesStr); convErr != nil {
		return SnapshotRecord{}, fmt.Errorf("parse treasury fees: %w", convErr)
	}
	if rec.ReserveRatio, convErr = decimal.NewFromString(ratioStr); convErr != nil {
		return SnapshotRecord{}, fmt.Errorf("parse reserve ratio: %w", convErr)
	}
	if rec.ReserveUSD, convErr = decimal.NewFromString(reserveUSD); convErr != nil {
		return SnapshotRecord{}, fmt.Errorf("parse reserve usd: %w", convErr)
	}
	if rec.PriceUSD, convErr = decimal.NewFromString(priceUSDStr); convErr != nil {
		return SnapshotRecord{}, fmt.Errorf("parse price usd: %w", convErr)
	}

	return rec, nil
}

var (
	_ SnapshotStore  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
