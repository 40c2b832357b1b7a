package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/app"
)

var (
	backfillPool      string
	backfillFromBlock uint64
	backfillToBlock   uint64
	backfillStep      uint64
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill historical snapshots from archive nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFromBlock == 0 {
			return fmt.Errorf("--from-block must be provided")
		}
		if backfillToBlock != 0 && backfillFromBlock > backfillToBlock {
			return fmt.Errorf("--from-block must not exceed --to-block")
		}

		opts := app.BackfillOptions{
			Pool:      backfillPool,
			FromBlock: backfillFromBlock,
			ToBlock:   backfillToBlock,
			Step:      backfillStep,
			DryRun:    backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillPool, "pool", "", "Pool name (defaults to the first configured pool)")
	backfillCmd.Flags().Uint64Var(&backfillFromBlock, "from-block", 0, "First block height (inclusive)")
	backfillCmd.Flags().Uint64Var(&backfillToBlock, "to-block", 0, "Last block height (inclusive, defaults to the chain head)")
	backfillCmd.Flags().Uint64Var(&backfillStep, "step", 1, "Blocks to advance between snapshots")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
