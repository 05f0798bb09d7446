package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/andgamespace/backtest/pkg/errors"
)

type PurchaseType string

type OrderType string

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

const (
	OrderReasonStrategy          string = "strategy"
	OrderReasonLimitTriggered    string = "limit_triggered"
	OrderReasonStopTriggered     string = "stop_triggered"
	OrderReasonInsufficientFunds string = "insufficient_funds"
	OrderReasonRiskVeto          string = "risk_veto"
	OrderReasonInvalidQuantity   string = "invalid_quantity"
	OrderReasonInvalidPrice      string = "invalid_price"
)

type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// Order is a single instruction to buy or sell. MARKET orders resolve at
// creation; LIMIT and STOP orders wait in the order book until their trigger
// price is reached. LimitPrice must be set exactly when OrderType is LIMIT,
// StopPrice exactly when OrderType is STOP.
type Order struct {
	OrderID   string       `yaml:"order_id" json:"order_id" csv:"order_id" validate:"required,uuid"`
	Symbol    string       `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side      PurchaseType `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	OrderType OrderType    `yaml:"order_type" json:"order_type" csv:"order_type" validate:"required,oneof=MARKET LIMIT STOP"`
	Quantity  float64      `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	// Price is the decision-time reference price, before slippage.
	Price      float64                 `yaml:"price" json:"price" csv:"price" validate:"required,gt=0"`
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	StopPrice  optional.Option[float64] `yaml:"stop_price" json:"stop_price" csv:"stop_price"`
	Timestamp  time.Time               `yaml:"timestamp" json:"timestamp" csv:"timestamp" validate:"required"`
	Status     OrderStatus             `yaml:"status" json:"status" csv:"status"`
	// Reason records why the order exists: a strategy signal, a triggered
	// pending order, or the rejection cause for REJECTED orders.
	Reason       Reason `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	StrategyName string `yaml:"strategy_name" json:"strategy_name" csv:"strategy_name" validate:"required"`
	Fee          float64 `yaml:"fee" json:"fee" csv:"fee" validate:"gte=0"`
	IsCompleted  bool    `yaml:"is_completed" json:"is_completed" csv:"is_completed"`
}

// Validate validates the Order struct, including the price fields that
// each order type requires.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	switch o.OrderType {
	case OrderTypeMarket:
		if o.LimitPrice.IsSome() || o.StopPrice.IsSome() {
			return errors.New(errors.ErrCodeInvalidOrder, "market order must not carry a limit or stop price")
		}
	case OrderTypeLimit:
		if o.LimitPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a limit price")
		}

		if o.LimitPrice.Unwrap() <= 0 {
			return errors.New(errors.ErrCodeInvalidPrice, "limit price must be positive")
		}
	case OrderTypeStop:
		if o.StopPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrder, "stop order requires a stop price")
		}

		if o.StopPrice.Unwrap() <= 0 {
			return errors.New(errors.ErrCodeInvalidPrice, "stop price must be positive")
		}
	}

	return nil
}
