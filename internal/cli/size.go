package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/internal/display"
	"github.com/dyike/CortexDesk/internal/sizing"
)

func newSizeCmd(a *App) *cobra.Command {
	var (
		symbol      string
		entry, stop float64
		risk        float64
		balance     float64
		maxLeverage float64
		minQty      float64
	)
	cmd := &cobra.Command{
		Use:   "size",
		Short: "Size a position from entry, stop and account risk",
		Long: `Size a position without the agent.
Example: cortexdesk size --symbol BTC/USDT --entry 60000 --stop 58500 --risk 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(symbol) == "" {
				symbol = a.cfg.DefaultSymbol
			}
			if !cmd.Flags().Changed("balance") {
				balance = a.cfg.AvailableBalance
			}
			if !cmd.Flags().Changed("max-leverage") {
				maxLeverage = a.cfg.MaxLeverage
			}
			if balance <= 0 {
				return errors.New("no available balance: pass --balance or set CORTEXDESK_AVAILABLE_BALANCE")
			}

			res, err := sizing.Calculate(sizing.Request{
				Symbol:             symbol,
				EntryPrice:         entry,
				StopPrice:          stop,
				AvailableBalance:   balance,
				MaxLeverage:        maxLeverage,
				RiskPercent:        risk,
				DefaultRiskPercent: a.cfg.DefaultPositionSize,
				MinQuantity:        minQty,
			})
			if err != nil {
				return err
			}
			display.SizingTable(a.stdout, symbol, res, balance)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "Trading symbol (default from config)")
	cmd.Flags().Float64Var(&entry, "entry", 0, "Entry price")
	cmd.Flags().Float64Var(&stop, "stop", 0, "Stop loss price")
	cmd.Flags().Float64Var(&risk, "risk", 0, "Risk as percent of balance (default from config)")
	cmd.Flags().Float64Var(&balance, "balance", 0, "Available balance (default from config)")
	cmd.Flags().Float64Var(&maxLeverage, "max-leverage", 0, "Leverage ceiling (default from config)")
	cmd.Flags().Float64Var(&minQty, "min-qty", 0, "Minimum order quantity, 0 disables the check")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("stop")
	return cmd
}
