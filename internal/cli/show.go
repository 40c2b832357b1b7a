package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/app"
)

var (
	showPool  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent archived snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Pool:  showPool,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showPool, "pool", "", "Pool name (defaults to the first configured pool)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")
}
