package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/app"
)

var (
	simulatePool        string
	simulatePhase       string
	simulateReserveFrom float64
	simulateReserveTo   float64
	simulatePrice       float64
	simulateSupply      float64
	simulateFees        float64
	simulatePaused      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次池状态变化并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateReserveFrom <= 0 || simulateReserveTo <= 0 {
			return errors.New("--reserve-from 与 --reserve-to 必须大于 0")
		}

		opts := app.SimulateOptions{
			Pool:        simulatePool,
			Phase:       simulatePhase,
			ReserveFrom: simulateReserveFrom,
			ReserveTo:   simulateReserveTo,
			Price:       simulatePrice,
			Supply:      simulateSupply,
			Fees:        simulateFees,
			Paused:      simulatePaused,
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePool, "pool", "", "Pool name (defaults to the first configured pool)")
	simulateCmd.Flags().StringVar(&simulatePhase, "phase", "bonding_curve", "模拟的定价阶段 (flat 或 bonding_curve)")
	simulateCmd.Flags().Float64Var(&simulateReserveFrom, "reserve-from", 0, "基准储备余额 (整币)")
	simulateCmd.Flags().Float64Var(&simulateReserveTo, "reserve-to", 0, "当前储备余额 (整币)")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 1, "现货价格 (整币)")
	simulateCmd.Flags().Float64Var(&simulateSupply, "supply", 1000000, "代币供应量 (整币)")
	simulateCmd.Flags().Float64Var(&simulateFees, "fees", 0, "累计金库费用 (整币)")
	simulateCmd.Flags().BoolVar(&simulatePaused, "paused", false, "模拟交易暂停状态")
}
