package types

import (
	"time"

	"github.com/moznion/go-optional"
)

type SignalAction string

const (
	// SignalActionBuy requests a position-opening or position-increasing order
	SignalActionBuy SignalAction = "buy"
	// SignalActionSell requests a position-reducing order
	SignalActionSell SignalAction = "sell"
	// SignalActionNone requests no order for this bar
	SignalActionNone SignalAction = "none"
)

// Signal is a strategy's decision for one bar. Action and order parameters
// form a closed variant: a NONE action carries no order fields, a LIMIT
// order carries a limit price, a STOP order a stop price. The engine
// translates actionable signals into orders; strategies never touch the
// ledger directly.
type Signal struct {
	// Time is the bar time the signal was generated at
	Time time.Time
	// Symbol is the instrument the signal applies to
	Symbol string
	// Action is buy, sell, or none
	Action SignalAction
	// OrderType selects how the signal becomes an order; empty means MARKET
	OrderType OrderType
	// LimitPrice must be present exactly when OrderType is LIMIT
	LimitPrice optional.Option[float64]
	// StopPrice must be present exactly when OrderType is STOP
	StopPrice optional.Option[float64]
	// Name is the name of the signal
	Name string
	// Reason is a human-readable explanation for the signal
	Reason string
	// RawValue carries the indicator value(s) behind the signal
	RawValue any
	// Indicator is the indicator that generated the signal, if any
	Indicator IndicatorType
}

// Actionable reports whether the signal requests an order.
func (s Signal) Actionable() bool {
	return s.Action == SignalActionBuy || s.Action == SignalActionSell
}

// EffectiveOrderType returns the order type the signal resolves to,
// defaulting to MARKET when unset.
func (s Signal) EffectiveOrderType() OrderType {
	if s.OrderType == "" {
		return OrderTypeMarket
	}

	return s.OrderType
}
