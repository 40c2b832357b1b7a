package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}
