package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pool monitor",
	Long: "Polls every configured bonding-curve pool on its schedule, evaluates the\n" +
		"phase-gated anomaly rules and dispatches alerts until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}
