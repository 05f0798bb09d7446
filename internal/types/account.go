package types

import "time"

// AccountInfo is a point-in-time view of the ledger's account state.
type AccountInfo struct {
	// Balance is the current cash balance (excluding unrealized P&L)
	Balance float64 `json:"balance" yaml:"balance"`
	// Equity is the total account value (balance + mark-to-market positions)
	Equity float64 `json:"equity" yaml:"equity"`
	// BuyingPower is the cash available for new purchases
	BuyingPower float64 `json:"buying_power" yaml:"buying_power"`
	// RealizedPnL is the total realized profit/loss from reducing fills
	RealizedPnL float64 `json:"realized_pnl" yaml:"realized_pnl"`
	// UnrealizedPnL is the total open profit/loss across positions
	UnrealizedPnL float64 `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	// TotalFees is the total commission paid
	TotalFees float64 `json:"total_fees" yaml:"total_fees"`
}

// EquitySnapshot is one entry of the ledger's equity history. Snapshots are
// append-only and timestamp-monotonic; TotalEquity always equals cash plus
// the mark-to-market value of open positions at the snapshot time.
type EquitySnapshot struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp" csv:"timestamp"`
	Cash        float64   `json:"cash" yaml:"cash" csv:"cash"`
	TotalEquity float64   `json:"total_equity" yaml:"total_equity" csv:"total_equity"`
}
