package engine

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andgamespace/backtest/internal/engine/engine_v1/commission_fee"
	"github.com/andgamespace/backtest/internal/logger"
	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/internal/utils"
	"github.com/andgamespace/backtest/pkg/errors"
)

// Ledger is the only mutator of account state: cash, open positions, the
// trade log, and the equity history. Every mutating call must come from one
// logical thread; runs that execute in parallel each get their own Ledger
// and OrderBook.
type Ledger struct {
	logger     *logger.Logger
	state      *BacktestState
	orderBook  *OrderBook
	execution  *ExecutionModel
	riskGate   *RiskGate
	commission commission_fee.CommissionFee

	decimalPrecision   int
	fixedTradeQuantity float64

	cash        float64
	positions   map[string]types.Position
	history     []types.EquitySnapshot
	realizedPnL float64
	totalFees   float64
}

// FillResult is the outcome of routing one order through the ledger. The
// order inside carries its final disposition: FILLED with the matching
// trade, REJECTED with the rejection cause, or PENDING when it was queued
// in the order book instead.
type FillResult struct {
	Order         types.Order
	Trade         types.Trade
	Filled        bool
	IsNewPosition bool
}

func NewLedger(config BacktestEngineV1Config, state *BacktestState, orderBook *OrderBook, logger *logger.Logger) (*Ledger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	execution, err := NewExecutionModel(config.SlippageRate, config.SlippageSeed.TakeOr(time.Now().UnixNano()))
	if err != nil {
		return nil, err
	}

	return &Ledger{
		logger:             logger,
		state:              state,
		orderBook:          orderBook,
		execution:          execution,
		riskGate:           NewRiskGate(config.MaxDrawdown, config.VolatilityThreshold),
		commission:         commission_fee.GetCommissionFeeHandler(config.Broker),
		decimalPrecision:   config.DecimalPrecision,
		fixedTradeQuantity: config.FixedTradeQuantity,
		cash:               config.InitialCapital,
		positions:          make(map[string]types.Position),
	}, nil
}

// OpenOrAdd fills a buy order: slippage, then the risk gate, then the cash
// check. A passing fill recomputes the cost-basis weighted average entry
// price, decrements cash, and journals the trade and an equity snapshot.
// Declined fills are journaled as rejections and are not errors.
func (l *Ledger) OpenOrAdd(order types.Order) (FillResult, error) {
	quantity := utils.RoundToDecimalPrecision(order.Quantity, l.decimalPrecision)
	if quantity <= 0 {
		return l.reject(order, types.OrderReasonInvalidQuantity,
			fmt.Sprintf("quantity %f is zero after rounding to %d decimals", order.Quantity, l.decimalPrecision))
	}

	executionPrice := l.execution.FillPrice(order.Price, order.Side)
	fee := l.commission.Calculate(quantity, executionPrice)

	execDec := decimal.NewFromFloat(executionPrice)
	qtyDec := decimal.NewFromFloat(quantity)
	costDec := execDec.Mul(qtyDec).Add(decimal.NewFromFloat(fee))
	totalCost, _ := costDec.Float64()
	notional, _ := execDec.Mul(qtyDec).Float64()

	entryPrice := optional.None[float64]()

	existing, hasPosition := l.positions[order.Symbol]
	if hasPosition {
		entryPrice = optional.Some(existing.AverageEntryPrice)
	}

	if allowed, reason := l.riskGate.Allow(notional, l.cash, l.history, optional.Some(order.Price), entryPrice); !allowed {
		return l.reject(order, types.OrderReasonRiskVeto, reason)
	}

	if totalCost > l.cash {
		return l.reject(order, types.OrderReasonInsufficientFunds,
			fmt.Sprintf("buy cost %.2f exceeds available cash %.2f", totalCost, l.cash))
	}

	if hasPosition {
		oldCostDec := decimal.NewFromFloat(existing.Quantity).Mul(decimal.NewFromFloat(existing.AverageEntryPrice))
		newQtyDec := decimal.NewFromFloat(existing.Quantity).Add(qtyDec)
		existing.Quantity, _ = newQtyDec.Float64()
		existing.AverageEntryPrice, _ = oldCostDec.Add(costDec).Div(newQtyDec).Float64()
		existing.LastPrice = order.Price
		l.positions[order.Symbol] = existing
	} else {
		averageEntry, _ := costDec.Div(qtyDec).Float64()
		l.positions[order.Symbol] = types.Position{
			Symbol:            order.Symbol,
			Quantity:          quantity,
			AverageEntryPrice: averageEntry,
			LastPrice:         order.Price,
			OpenTimestamp:     order.Timestamp,
			StrategyName:      order.StrategyName,
		}
	}

	l.cash, _ = decimal.NewFromFloat(l.cash).Sub(costDec).Float64()
	l.totalFees += fee

	order.Status = types.OrderStatusFilled
	order.IsCompleted = true
	order.Fee = fee

	trade := types.Trade{
		Order:          order,
		ExecutedAt:     order.Timestamp,
		ExecutedQty:    quantity,
		ReferencePrice: order.Price,
		ExecutedPrice:  executionPrice,
		Fee:            fee,
	}

	if err := l.state.RecordTrade(trade); err != nil {
		return FillResult{}, err
	}

	if err := l.appendEquity(order.Timestamp); err != nil {
		return FillResult{}, err
	}

	return FillResult{
		Order:         order,
		Trade:         trade,
		Filled:        true,
		IsNewPosition: !hasPosition,
	}, nil
}

// CloseOrReduce fills a sell order against an open position. The quantity is
// capped at the held amount; the average entry price is left unchanged on
// reductions and the position is removed when its quantity reaches zero.
// Calling this without an open position is a contract violation.
func (l *Ledger) CloseOrReduce(order types.Order) (FillResult, error) {
	position, hasPosition := l.positions[order.Symbol]
	if !hasPosition {
		return FillResult{}, errors.Newf(errors.ErrCodePositionNotFound, "cannot reduce %s: no open position", order.Symbol)
	}

	quantity := utils.RoundToDecimalPrecision(order.Quantity, l.decimalPrecision)
	if quantity <= 0 {
		return l.reject(order, types.OrderReasonInvalidQuantity,
			fmt.Sprintf("quantity %f is zero after rounding to %d decimals", order.Quantity, l.decimalPrecision))
	}

	if quantity > position.Quantity {
		quantity = position.Quantity
	}

	executionPrice := l.execution.FillPrice(order.Price, order.Side)
	fee := l.commission.Calculate(quantity, executionPrice)

	execDec := decimal.NewFromFloat(executionPrice)
	qtyDec := decimal.NewFromFloat(quantity)
	proceedsDec := execDec.Mul(qtyDec).Sub(decimal.NewFromFloat(fee))
	notional, _ := execDec.Mul(qtyDec).Float64()

	if allowed, reason := l.riskGate.Allow(notional, l.cash, l.history, optional.Some(order.Price), optional.Some(position.AverageEntryPrice)); !allowed {
		return l.reject(order, types.OrderReasonRiskVeto, reason)
	}

	newCashDec := decimal.NewFromFloat(l.cash).Add(proceedsDec)
	if newCashDec.IsNegative() {
		// A minimum commission can exceed the proceeds of a tiny sale.
		return l.reject(order, types.OrderReasonInsufficientFunds,
			fmt.Sprintf("sale proceeds %.2f do not cover the commission", proceedsDec.InexactFloat64()))
	}

	pnl, _ := position.RealizedPnL(quantity, executionPrice).Sub(decimal.NewFromFloat(fee)).Float64()

	l.cash, _ = newCashDec.Float64()
	l.realizedPnL += pnl
	l.totalFees += fee

	newQty, _ := decimal.NewFromFloat(position.Quantity).Sub(qtyDec).Float64()
	if newQty <= 0 {
		delete(l.positions, order.Symbol)
	} else {
		position.Quantity = newQty
		position.LastPrice = order.Price
		l.positions[order.Symbol] = position
	}

	order.Status = types.OrderStatusFilled
	order.IsCompleted = true
	order.Fee = fee

	trade := types.Trade{
		Order:          order,
		ExecutedAt:     order.Timestamp,
		ExecutedQty:    quantity,
		ReferencePrice: order.Price,
		ExecutedPrice:  executionPrice,
		Fee:            fee,
		PnL:            pnl,
	}

	if err := l.state.RecordTrade(trade); err != nil {
		return FillResult{}, err
	}

	if err := l.appendEquity(order.Timestamp); err != nil {
		return FillResult{}, err
	}

	return FillResult{
		Order:  order,
		Trade:  trade,
		Filled: true,
	}, nil
}

// HandleSignal translates an actionable signal into an order sized by the
// fixed per-signal trade quantity. MARKET orders fill immediately through
// the open or close path; LIMIT and STOP orders are queued in the order
// book. Returns None for non-actionable signals.
func (l *Ledger) HandleSignal(signal types.Signal, data types.MarketData) (optional.Option[FillResult], error) {
	if !signal.Actionable() {
		return optional.None[FillResult](), nil
	}

	side := types.PurchaseTypeBuy
	if signal.Action == types.SignalActionSell {
		side = types.PurchaseTypeSell
	}

	order := types.Order{
		OrderID:      uuid.New().String(),
		Symbol:       signal.Symbol,
		Side:         side,
		OrderType:    signal.EffectiveOrderType(),
		Quantity:     l.fixedTradeQuantity,
		Price:        data.Close,
		LimitPrice:   signal.LimitPrice,
		StopPrice:    signal.StopPrice,
		Timestamp:    data.Time,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy, Message: signal.Reason},
		StrategyName: signal.Name,
	}

	if order.OrderType == types.OrderTypeMarket {
		result, err := l.fill(order)
		if err != nil {
			return optional.None[FillResult](), err
		}

		return optional.Some(result), nil
	}

	if err := l.orderBook.Submit(order); err != nil {
		if errors.HasCode(err, errors.ErrCodePendingMarket) {
			return optional.None[FillResult](), err
		}

		// A malformed limit or stop order skips this trade, not the run.
		result, rejectErr := l.reject(order, types.OrderReasonInvalidPrice, err.Error())
		if rejectErr != nil {
			return optional.None[FillResult](), rejectErr
		}

		return optional.Some(result), nil
	}

	order.Status = types.OrderStatusPending
	if err := l.state.RecordOrder(order); err != nil {
		return optional.None[FillResult](), err
	}

	return optional.Some(FillResult{Order: order}), nil
}

// ProcessPendingOrders advances the order book with the current prices and
// fills every triggered order as a market fill at its trigger price.
func (l *Ledger) ProcessPendingOrders(currentPrices map[string]float64, timestamp time.Time) ([]FillResult, error) {
	triggered := l.orderBook.Process(currentPrices, timestamp)

	results := make([]FillResult, 0, len(triggered))

	for _, order := range triggered {
		result, err := l.fill(order)
		if err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	return results, nil
}

// fill routes an order to the open or close path. A sell with no open
// position is a declined trade rather than a contract violation here: the
// position may have closed between signal and trigger.
func (l *Ledger) fill(order types.Order) (FillResult, error) {
	if order.Side == types.PurchaseTypeSell {
		if position, ok := l.positions[order.Symbol]; !ok || position.Quantity <= 0 {
			return l.reject(order, types.OrderReasonInvalidQuantity, "sell order with no open position")
		}

		return l.CloseOrReduce(order)
	}

	return l.OpenOrAdd(order)
}

func (l *Ledger) reject(order types.Order, reason string, message string) (FillResult, error) {
	order.Status = types.OrderStatusRejected
	order.IsCompleted = true
	order.Reason = types.Reason{Reason: reason, Message: message}

	if err := l.state.RecordRejection(order); err != nil {
		return FillResult{}, err
	}

	l.logger.Warn("Order rejected",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("reason", reason),
		zap.String("message", message),
	)

	return FillResult{Order: order}, nil
}

// ObservePrice marks an open position to the latest market price, so later
// equity snapshots value every position at its most recently seen price.
func (l *Ledger) ObservePrice(symbol string, price float64) {
	position, ok := l.positions[symbol]
	if !ok {
		return
	}

	position.LastPrice = price
	l.positions[symbol] = position
}

// TakeSnapshot appends an equity snapshot of the current account state.
func (l *Ledger) TakeSnapshot(timestamp time.Time) error {
	return l.appendEquity(timestamp)
}

func (l *Ledger) appendEquity(timestamp time.Time) error {
	if len(l.history) > 0 && l.history[len(l.history)-1].Timestamp.After(timestamp) {
		return errors.Newf(errors.ErrCodeInternal, "equity history must stay timestamp-monotonic: %s is before %s",
			timestamp, l.history[len(l.history)-1].Timestamp)
	}

	snapshot := types.EquitySnapshot{
		Timestamp:   timestamp,
		Cash:        l.cash,
		TotalEquity: l.totalEquity(),
	}

	l.history = append(l.history, snapshot)

	return l.state.RecordEquity(snapshot)
}

func (l *Ledger) totalEquity() float64 {
	equityDec := decimal.NewFromFloat(l.cash)

	for _, position := range l.positions {
		equityDec = equityDec.Add(decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(position.LastPrice)))
	}

	equity, _ := equityDec.Float64()

	return equity
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// GetPosition returns the open position for a symbol. A zero-quantity
// position means none is held.
func (l *Ledger) GetPosition(symbol string) types.Position {
	position, ok := l.positions[symbol]
	if !ok {
		return types.Position{Symbol: symbol}
	}

	return position
}

// GetPositions returns the open positions sorted by symbol.
func (l *Ledger) GetPositions() []types.Position {
	symbols := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	positions := make([]types.Position, 0, len(symbols))
	for _, symbol := range symbols {
		positions = append(positions, l.positions[symbol])
	}

	return positions
}

// EquityHistory returns a copy of the equity snapshots in append order.
func (l *Ledger) EquityHistory() []types.EquitySnapshot {
	return slices.Clone(l.history)
}

// AccountInfo returns a point-in-time view of the account.
func (l *Ledger) AccountInfo() types.AccountInfo {
	unrealizedDec := decimal.Zero
	for _, position := range l.positions {
		unrealizedDec = unrealizedDec.Add(position.UnrealizedPnL())
	}

	unrealized, _ := unrealizedDec.Float64()

	return types.AccountInfo{
		Balance:       l.cash,
		Equity:        l.totalEquity(),
		BuyingPower:   l.cash,
		RealizedPnL:   l.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalFees:     l.totalFees,
	}
}

// MaxBuyQuantity returns the largest quantity affordable at price after
// commission, rounded to the configured precision.
func (l *Ledger) MaxBuyQuantity(price float64) float64 {
	maxQty := utils.CalculateMaxQuantity(l.cash, price, l.commission)

	return utils.RoundToDecimalPrecision(maxQty, l.decimalPrecision)
}
