package app

import (
	"context"
	"errors"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/storage"
)

// Backfill archives historical snapshots for one pool over a block range.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	pool, _, err := a.poolRef(opts.Pool)
	if err != nil {
		return err
	}

	step := opts.Step
	if step == 0 {
		step = 1
	}

	reader := a.newReader()
	defer reader.Close()

	to := opts.ToBlock
	if to == 0 {
		to, err = reader.LatestHeight(ctx)
		if err != nil {
			return err
		}
	}
	if opts.FromBlock > to {
		return errors.New("回填范围为空，请检查 --from-block/--to-block")
	}

	var snapStore storage.SnapshotStore
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		snapStore = store
	}

	processed := 0
	failed := 0
	for height := opts.FromBlock; height <= to; height += step {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		snap, err := reader.FetchSnapshotAt(ctx, pool, height)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Uint64("block", height).Msg("回填失败")
			continue
		}

		if snapStore != nil {
			if err := snapStore.InsertSnapshot(ctx, storage.RecordFromSnapshot(snap)); err != nil {
				failed++
				a.Logger.Error().Err(err).Uint64("block", height).Msg("回填写入失败")
				continue
			}
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分区块回填失败，请检查日志")
	}
	return nil
}
