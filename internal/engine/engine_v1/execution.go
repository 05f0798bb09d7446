package engine

import (
	"math/rand"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
)

// ExecutionModel derives the price a fill actually executes at from the
// decision-time reference price. Each fill draws a perturbation u in [-1, 1]
// and executes at reference + reference*slippageRate*u, floored at zero.
// The draw is symmetric, so buys and sells share the same price distribution.
type ExecutionModel struct {
	slippageRate float64
	rng          *rand.Rand
}

// NewExecutionModel creates an execution model drawing from the given seed.
// Use a fixed seed for reproducible fills in tests.
func NewExecutionModel(slippageRate float64, seed int64) (*ExecutionModel, error) {
	if slippageRate < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidSlippageRate, "slippage rate must be non-negative, got %f", slippageRate)
	}

	return &ExecutionModel{
		slippageRate: slippageRate,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// FillPrice derives the execution price for one fill. Slippage is applied
// exactly once per fill.
func (e *ExecutionModel) FillPrice(referencePrice float64, side types.PurchaseType) float64 {
	u := e.rng.Float64()*2 - 1

	price := referencePrice + referencePrice*e.slippageRate*u
	if price < 0 {
		return 0
	}

	return price
}
