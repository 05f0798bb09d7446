package backtest

import (
	"github.com/andgamespace/backtest/internal/types"
)

// engineConfig keeps fills deterministic across the e2e scenarios: no
// slippage, no commission, a fixed ten-share clip per signal.
const engineConfig = `
initial_capital: 10000
slippage_rate: 0
broker: zero_commission
fixed_trade_quantity: 10
`

func tradesBySide(trades []types.Trade, side types.PurchaseType) []types.Trade {
	var filtered []types.Trade

	for _, trade := range trades {
		if trade.Order.Side == side {
			filtered = append(filtered, trade)
		}
	}

	return filtered
}
