package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
)

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name        string
		order       Order
		shouldError bool
	}{
		{
			name: "valid market order",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeMarket,
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Status:       OrderStatusFilled,
				Reason:       Reason{Reason: OrderReasonStrategy, Message: "buy signal"},
				StrategyName: "sma-crossover",
			},
			shouldError: false,
		},
		{
			name: "valid limit order",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeLimit,
				Quantity:     10.0,
				Price:        100.0,
				LimitPrice:   optional.Some(95.0),
				Timestamp:    time.Now(),
				Status:       OrderStatusPending,
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: false,
		},
		{
			name: "valid stop order",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "MSFT",
				Side:         PurchaseTypeSell,
				OrderType:    OrderTypeStop,
				Quantity:     5.0,
				Price:        300.0,
				StopPrice:    optional.Some(290.0),
				Timestamp:    time.Now(),
				Status:       OrderStatusPending,
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "rsi",
			},
			shouldError: false,
		},
		{
			name: "limit order without limit price",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeLimit,
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "stop order without stop price",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeSell,
				OrderType:    OrderTypeStop,
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "market order with a limit price",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeMarket,
				Quantity:     10.0,
				Price:        100.0,
				LimitPrice:   optional.Some(95.0),
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "limit order with non-positive limit price",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeLimit,
				Quantity:     10.0,
				Price:        100.0,
				LimitPrice:   optional.Some(0.0),
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "empty symbol",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeMarket,
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "empty side",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         "",
				OrderType:    OrderTypeMarket,
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "unknown order type",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderType("TRAILING"),
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "negative quantity",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeSell,
				OrderType:    OrderTypeMarket,
				Quantity:     -10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "negative price",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeMarket,
				Quantity:     10.0,
				Price:        -100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "missing order id",
			order: Order{
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeMarket,
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: OrderReasonStrategy},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
		{
			name: "empty reason",
			order: Order{
				OrderID:      uuid.New().String(),
				Symbol:       "AAPL",
				Side:         PurchaseTypeBuy,
				OrderType:    OrderTypeMarket,
				Quantity:     10.0,
				Price:        100.0,
				Timestamp:    time.Now(),
				Reason:       Reason{Reason: ""},
				StrategyName: "sma-crossover",
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if tt.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
