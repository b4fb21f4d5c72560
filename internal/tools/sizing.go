package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/profile"
	"github.com/dyike/CortexDesk/internal/sizing"
)

type PositionSizeInput struct {
	Symbol              string  `json:"symbol"`
	EntryPrice          float64 `json:"entry_price"`
	StopLoss            float64 `json:"stop_loss"`
	PositionSizePercent float64 `json:"position_size_percent,omitempty"`
}

type PositionSizeOutput struct {
	Symbol string `json:"symbol"`
	sizing.Result
	AvailableBalance float64 `json:"available_balance"`
	Report           string  `json:"report"`
}

func NewPositionSizeTool(provider profile.Provider) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolCalculatePositionSize,
			Desc: "Calculate position quantity, leverage and capital from entry, stop loss and account risk. " +
				"Quantity comes from the stop distance so every trade risks the same share of the balance; " +
				"leverage is capped at the account maximum.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol": {
					Type:     schema.String,
					Desc:     "Trading symbol, e.g. BTC/USDT or AAPL",
					Required: true,
				},
				"entry_price": {
					Type:     schema.Number,
					Desc:     "Entry price for the trade",
					Required: true,
				},
				"stop_loss": {
					Type:     schema.Number,
					Desc:     "Stop loss price level",
					Required: true,
				},
				"position_size_percent": {
					Type: schema.Number,
					Desc: "Risk as percentage of balance (0-100). Uses the profile default when omitted.",
				},
			}),
		},
		func(ctx context.Context, input PositionSizeInput) (*PositionSizeOutput, error) {
			symbol := strings.TrimSpace(input.Symbol)
			if symbol == "" {
				return nil, fmt.Errorf("symbol parameter is required")
			}

			p, err := provider.Profile(ctx)
			if err != nil {
				return nil, fmt.Errorf("position sizing needs the account profile: %w", err)
			}

			res, err := sizing.Calculate(sizing.Request{
				Symbol:             symbol,
				EntryPrice:         input.EntryPrice,
				StopPrice:          input.StopLoss,
				AvailableBalance:   p.AvailableBalance,
				MaxLeverage:        p.MaxLeverage,
				RiskPercent:        input.PositionSizePercent,
				DefaultRiskPercent: p.DefaultPositionSize,
			})
			if err != nil {
				return nil, fmt.Errorf("position sizing failed for %s: %w", symbol, err)
			}

			return &PositionSizeOutput{
				Symbol:           symbol,
				Result:           res,
				AvailableBalance: p.AvailableBalance,
				Report:           FormatSizing(symbol, res, p.AvailableBalance),
			}, nil
		},
	)
}

// FormatSizing renders a sizing result the way the model and the console read it.
func FormatSizing(symbol string, res sizing.Result, balance float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Position Sizing for %s:\n", symbol)
	fmt.Fprintf(&b, "- Quantity: %s\n", sizing.FormatQuantity(res.Quantity, symbol))
	fmt.Fprintf(&b, "- Leverage: %.2fx\n", res.Leverage)
	fmt.Fprintf(&b, "- Capital Allocated: $%.2f\n", res.CapitalAllocated)
	fmt.Fprintf(&b, "- Risk Amount: $%.2f (%g%% of balance)\n", res.RiskAmount, res.RiskPercentUsed)
	fmt.Fprintf(&b, "- Available Balance: $%.2f", balance)
	if res.Capped {
		b.WriteString("\n- Leverage capped at the account maximum; actual risk is below the requested percent")
	}
	return b.String()
}
