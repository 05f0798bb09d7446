package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
)

// OrderBook holds LIMIT and STOP orders until a market price reaches their
// trigger level. Orders trigger in submission order.
type OrderBook struct {
	pendingOrders []types.Order
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		pendingOrders: []types.Order{},
	}
}

// Submit adds a LIMIT or STOP order to the pending set. MARKET orders never
// wait on a trigger, so submitting one here is a caller bug and fails hard
// instead of being recorded as a rejection.
func (o *OrderBook) Submit(order types.Order) error {
	if order.OrderType == types.OrderTypeMarket {
		return errors.Newf(errors.ErrCodePendingMarket, "market order %s cannot be queued in the order book", order.OrderID)
	}

	if err := order.Validate(); err != nil {
		return err
	}

	order.Status = types.OrderStatusPending
	o.pendingOrders = append(o.pendingOrders, order)

	return nil
}

// Process scans the pending set once against the given prices and returns the
// orders whose trigger condition is met, in submission order. Triggered orders
// are removed from the book with their price and timestamp set to the trigger
// values; orders for symbols absent from currentPrices stay pending untouched.
func (o *OrderBook) Process(currentPrices map[string]float64, timestamp time.Time) []types.Order {
	if len(o.pendingOrders) == 0 {
		return nil
	}

	var remainingOrders []types.Order

	var triggeredOrders []types.Order

	for _, order := range o.pendingOrders {
		price, ok := currentPrices[order.Symbol]
		if !ok {
			remainingOrders = append(remainingOrders, order)

			continue
		}

		if !triggerMet(order, price) {
			remainingOrders = append(remainingOrders, order)

			continue
		}

		order.Price = price
		order.Timestamp = timestamp
		order.Reason = triggerReason(order, price)
		triggeredOrders = append(triggeredOrders, order)
	}

	o.pendingOrders = remainingOrders

	return triggeredOrders
}

// Len returns the number of orders still waiting for their trigger.
func (o *OrderBook) Len() int {
	return len(o.pendingOrders)
}

// PendingOrders returns a copy of the pending set in submission order.
func (o *OrderBook) PendingOrders() []types.Order {
	return slices.Clone(o.pendingOrders)
}

// triggerMet reports whether the order's trigger condition holds at price.
// Limit buys trigger at or below the limit, limit sells at or above it; stop
// buys trigger at or above the stop, stop sells at or below it.
func triggerMet(order types.Order, price float64) bool {
	switch order.OrderType {
	case types.OrderTypeLimit:
		limit := order.LimitPrice.Unwrap()
		if order.Side == types.PurchaseTypeBuy {
			return price <= limit
		}

		return price >= limit
	case types.OrderTypeStop:
		stop := order.StopPrice.Unwrap()
		if order.Side == types.PurchaseTypeBuy {
			return price >= stop
		}

		return price <= stop
	default:
		return false
	}
}

func triggerReason(order types.Order, price float64) types.Reason {
	if order.OrderType == types.OrderTypeStop {
		return types.Reason{
			Reason:  types.OrderReasonStopTriggered,
			Message: fmt.Sprintf("stop %.4f reached at price %.4f", order.StopPrice.Unwrap(), price),
		}
	}

	return types.Reason{
		Reason:  types.OrderReasonLimitTriggered,
		Message: fmt.Sprintf("limit %.4f reached at price %.4f", order.LimitPrice.Unwrap(), price),
	}
}
