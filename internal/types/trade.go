package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one executed fill. Both the pre-slippage reference price and the
// post-slippage execution price are retained so a run can be re-analyzed
// without replaying it.
type Trade struct {
	Order          Order     `csv:"order"`
	ExecutedAt     time.Time `csv:"executed_at"`
	ExecutedQty    float64   `csv:"executed_qty"`
	ReferencePrice float64   `csv:"reference_price"`
	ExecutedPrice  float64   `csv:"executed_price"`
	// Fee is the commission charged for this fill.
	Fee float64 `csv:"fee"`
	// PnL is the realized profit and loss of this fill against the average
	// entry price. Always 0 for buys; a sell of 100 shares entered at
	// $100.01 and executed at $110.00 realizes (110.00-100.01)*100 = $999.
	PnL float64 `csv:"pnl"`
}

// Position represents the current holdings of one instrument. Holdings are
// long only; Quantity is never negative. A position with zero quantity is
// removed from the ledger rather than stored.
type Position struct {
	Symbol   string  `csv:"symbol"`
	Quantity float64 `csv:"quantity"`
	// AverageEntryPrice is the cost-basis weighted entry price. It is
	// recomputed on quantity-increasing fills only; reductions leave it
	// unchanged until the position closes.
	AverageEntryPrice float64 `csv:"average_entry_price"`
	// LastPrice is the most recent observed market price.
	LastPrice     float64   `csv:"last_price"`
	OpenTimestamp time.Time `csv:"open_timestamp"`
	StrategyName  string    `csv:"strategy_name"`
}

// MarketValue returns the mark-to-market value at the last observed price.
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.LastPrice
}

// UnrealizedPnL returns the open profit against the average entry price.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.Quantity == 0 {
		return decimal.Zero
	}

	lastDec := decimal.NewFromFloat(p.LastPrice)
	entryDec := decimal.NewFromFloat(p.AverageEntryPrice)
	qtyDec := decimal.NewFromFloat(p.Quantity)

	return lastDec.Sub(entryDec).Mul(qtyDec)
}

// RealizedPnL returns the profit realized by selling qty at price against
// the position's average entry price.
func (p *Position) RealizedPnL(qty, price float64) decimal.Decimal {
	priceDec := decimal.NewFromFloat(price)
	entryDec := decimal.NewFromFloat(p.AverageEntryPrice)
	qtyDec := decimal.NewFromFloat(qty)

	return priceDec.Sub(entryDec).Mul(qtyDec)
}
