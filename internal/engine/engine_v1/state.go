package engine

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andgamespace/backtest/internal/engine/engine_v1/datasource"
	"github.com/andgamespace/backtest/internal/logger"
	"github.com/andgamespace/backtest/internal/types"
)

// BacktestState records what a run produced: every order with its final
// disposition, every fill, the equity history, and every rejection. It is
// a journal, not an account; cash and positions live on the Ledger.
type BacktestState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

func NewBacktestState(logger *logger.Logger) (*BacktestState, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BacktestState{
		logger: logger,
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the tables for tracking orders, trades, equity history
// and rejections.
func (b *BacktestState) Initialize() error {
	// Orders are keyed by order_id; a pending order's row is replaced when
	// it later fills or gets rejected.
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			price DOUBLE,
			limit_price DOUBLE,
			stop_price DOUBLE,
			timestamp TIMESTAMP,
			status TEXT,
			is_completed BOOLEAN,
			reason TEXT,
			message TEXT,
			strategy_name TEXT,
			fee DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			price DOUBLE,
			timestamp TIMESTAMP,
			status TEXT,
			is_completed BOOLEAN,
			reason TEXT,
			message TEXT,
			strategy_name TEXT,
			executed_at TIMESTAMP,
			executed_qty DOUBLE,
			reference_price DOUBLE,
			executed_price DOUBLE,
			commission DOUBLE,
			pnl DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS equity (
			timestamp TIMESTAMP,
			cash DOUBLE,
			total_equity DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create equity table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS rejections (
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			price DOUBLE,
			timestamp TIMESTAMP,
			reason TEXT,
			message TEXT,
			strategy_name TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create rejections table: %w", err)
	}

	return nil
}

func optionalPrice(price optional.Option[float64]) interface{} {
	if price.IsNone() {
		return nil
	}

	return price.Unwrap()
}

func (b *BacktestState) insertOrder(runner squirrel.BaseRunner, order types.Order) error {
	insertQuery := b.sq.
		Insert("orders").
		Options("OR REPLACE").
		Columns(
			"order_id", "symbol", "side", "order_type", "quantity", "price",
			"limit_price", "stop_price", "timestamp", "status", "is_completed",
			"reason", "message", "strategy_name", "fee",
		).
		Values(
			order.OrderID, order.Symbol, order.Side, order.OrderType, order.Quantity, order.Price,
			optionalPrice(order.LimitPrice), optionalPrice(order.StopPrice), order.Timestamp, order.Status,
			order.IsCompleted, order.Reason.Reason, order.Reason.Message, order.StrategyName, order.Fee,
		).
		RunWith(runner)

	_, err := insertQuery.Exec()

	return err
}

// RecordOrder journals an order in its current disposition. Recording the
// same order_id again replaces the earlier row, so a pending order's row
// becomes the filled or rejected row once its outcome is known.
func (b *BacktestState) RecordOrder(order types.Order) error {
	if err := b.insertOrder(b.db, order); err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}

	return nil
}

// RecordTrade journals one executed fill together with its order row.
func (b *BacktestState) RecordTrade(trade types.Trade) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := b.insertOrder(tx, trade.Order); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert order: %w", err)
	}

	insertTradeQuery := b.sq.
		Insert("trades").
		Columns(
			"order_id", "symbol", "side", "order_type", "quantity", "price", "timestamp",
			"status", "is_completed", "reason", "message", "strategy_name",
			"executed_at", "executed_qty", "reference_price", "executed_price", "commission", "pnl",
		).
		Values(
			trade.Order.OrderID, trade.Order.Symbol, trade.Order.Side, trade.Order.OrderType,
			trade.Order.Quantity, trade.Order.Price, trade.Order.Timestamp,
			trade.Order.Status, trade.Order.IsCompleted, trade.Order.Reason.Reason, trade.Order.Reason.Message,
			trade.Order.StrategyName, trade.ExecutedAt, trade.ExecutedQty, trade.ReferencePrice,
			trade.ExecutedPrice, trade.Fee, trade.PnL,
		).
		RunWith(tx)

	if _, err := insertTradeQuery.Exec(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecordRejection journals a declined order. The order row is replaced with
// its rejected disposition and an entry is appended to the rejections table.
func (b *BacktestState) RecordRejection(order types.Order) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := b.insertOrder(tx, order); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert order: %w", err)
	}

	insertRejectionQuery := b.sq.
		Insert("rejections").
		Columns(
			"order_id", "symbol", "side", "order_type", "quantity", "price",
			"timestamp", "reason", "message", "strategy_name",
		).
		Values(
			order.OrderID, order.Symbol, order.Side, order.OrderType, order.Quantity, order.Price,
			order.Timestamp, order.Reason.Reason, order.Reason.Message, order.StrategyName,
		).
		RunWith(tx)

	if _, err := insertRejectionQuery.Exec(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert rejection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecordEquity appends one snapshot to the equity history.
func (b *BacktestState) RecordEquity(snapshot types.EquitySnapshot) error {
	insertQuery := b.sq.
		Insert("equity").
		Columns("timestamp", "cash", "total_equity").
		Values(snapshot.Timestamp, snapshot.Cash, snapshot.TotalEquity).
		RunWith(b.db)

	if _, err := insertQuery.Exec(); err != nil {
		return fmt.Errorf("failed to record equity snapshot: %w", err)
	}

	return nil
}

// GetAllTrades returns all trades in execution order.
func (b *BacktestState) GetAllTrades() ([]types.Trade, error) {
	selectQuery := b.sq.
		Select(
			"order_id", "symbol", "side", "order_type", "quantity", "price", "timestamp",
			"status", "is_completed", "reason", "message", "strategy_name",
			"executed_at", "executed_qty", "reference_price", "executed_price", "commission", "pnl",
		).
		From("trades").
		OrderBy("executed_at ASC").
		RunWith(b.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var trade types.Trade

		err := rows.Scan(
			&trade.Order.OrderID,
			&trade.Order.Symbol,
			&trade.Order.Side,
			&trade.Order.OrderType,
			&trade.Order.Quantity,
			&trade.Order.Price,
			&trade.Order.Timestamp,
			&trade.Order.Status,
			&trade.Order.IsCompleted,
			&trade.Order.Reason.Reason,
			&trade.Order.Reason.Message,
			&trade.Order.StrategyName,
			&trade.ExecutedAt,
			&trade.ExecutedQty,
			&trade.ReferencePrice,
			&trade.ExecutedPrice,
			&trade.Fee,
			&trade.PnL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// GetEquityHistory returns the equity snapshots in timestamp order.
func (b *BacktestState) GetEquityHistory() ([]types.EquitySnapshot, error) {
	selectQuery := b.sq.
		Select("timestamp", "cash", "total_equity").
		From("equity").
		OrderBy("timestamp ASC").
		RunWith(b.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query equity history: %w", err)
	}
	defer rows.Close()

	var history []types.EquitySnapshot

	for rows.Next() {
		var snapshot types.EquitySnapshot

		if err := rows.Scan(&snapshot.Timestamp, &snapshot.Cash, &snapshot.TotalEquity); err != nil {
			return nil, fmt.Errorf("failed to scan equity snapshot: %w", err)
		}

		history = append(history, snapshot)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity history: %w", err)
	}

	return history, nil
}

// GetRejections returns the rejected orders in timestamp order.
func (b *BacktestState) GetRejections() ([]types.Order, error) {
	selectQuery := b.sq.
		Select(
			"order_id", "symbol", "side", "order_type", "quantity", "price",
			"timestamp", "reason", "message", "strategy_name",
		).
		From("rejections").
		OrderBy("timestamp ASC").
		RunWith(b.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	var rejections []types.Order

	for rows.Next() {
		order := types.Order{Status: types.OrderStatusRejected}

		err := rows.Scan(
			&order.OrderID,
			&order.Symbol,
			&order.Side,
			&order.OrderType,
			&order.Quantity,
			&order.Price,
			&order.Timestamp,
			&order.Reason.Reason,
			&order.Reason.Message,
			&order.StrategyName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", err)
		}

		rejections = append(rejections, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rejections: %w", err)
	}

	return rejections, nil
}

// GetOrderById returns an order by its id.
func (b *BacktestState) GetOrderById(orderID string) (optional.Option[types.Order], error) {
	query := b.sq.
		Select(
			"order_id", "symbol", "side", "order_type", "quantity", "price",
			"limit_price", "stop_price", "timestamp", "status", "is_completed",
			"reason", "message", "strategy_name", "fee",
		).
		From("orders").
		Where(squirrel.Eq{"order_id": orderID}).
		RunWith(b.db)

	var (
		order      types.Order
		limitPrice sql.NullFloat64
		stopPrice  sql.NullFloat64
	)

	err := query.QueryRow().Scan(
		&order.OrderID,
		&order.Symbol,
		&order.Side,
		&order.OrderType,
		&order.Quantity,
		&order.Price,
		&limitPrice,
		&stopPrice,
		&order.Timestamp,
		&order.Status,
		&order.IsCompleted,
		&order.Reason.Reason,
		&order.Reason.Message,
		&order.StrategyName,
		&order.Fee,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return optional.None[types.Order](), nil
		}

		return optional.None[types.Order](), fmt.Errorf("failed to get order by id: %w", err)
	}

	if limitPrice.Valid {
		order.LimitPrice = optional.Some(limitPrice.Float64)
	}

	if stopPrice.Valid {
		order.StopPrice = optional.Some(stopPrice.Float64)
	}

	return optional.Some(order), nil
}

// Cleanup resets the database state.
func (b *BacktestState) Cleanup() error {
	// Raw SQL since Squirrel has no DROP syntax.
	_, err := b.db.Exec(`
		DROP TABLE IF EXISTS trades;
		DROP TABLE IF EXISTS orders;
		DROP TABLE IF EXISTS equity;
		DROP TABLE IF EXISTS rejections;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup tables: %w", err)
	}

	return b.Initialize()
}

// Write saves the run journal to Parquet files in the specified directory.
func (b *BacktestState) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Raw SQL since Squirrel has no COPY syntax.
	exports := []struct {
		table string
		file  string
	}{
		{table: "trades", file: "trades.parquet"},
		{table: "orders", file: "orders.parquet"},
		{table: "equity", file: "equity.parquet"},
		{table: "rejections", file: "rejections.parquet"},
	}

	for _, export := range exports {
		target := filepath.Join(path, export.file)

		_, err := b.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, export.table, target))
		if err != nil {
			return fmt.Errorf("failed to export %s to Parquet: %w", export.table, err)
		}
	}

	b.logger.Info("Successfully exported backtest results to Parquet files",
		zap.String("path", path),
	)

	return nil
}

// calculateTradeResult calculates the win/loss counts for a symbol.
func (b *BacktestState) calculateTradeResult(symbol string) (types.TradeResult, error) {
	// Raw SQL for the CTE; Squirrel doesn't support them well.
	query := `
		WITH trade_stats AS (
			SELECT
				COUNT(*) as total_trades,
				SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END) as winning_trades,
				SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END) as losing_trades
			FROM trades
			WHERE symbol = ?
		)
		SELECT
			total_trades,
			COALESCE(winning_trades, 0),
			COALESCE(losing_trades, 0),
			CASE WHEN total_trades > 0 THEN CAST(COALESCE(winning_trades, 0) AS DOUBLE) / total_trades ELSE 0 END as win_rate
		FROM trade_stats
	`

	var result types.TradeResult

	err := b.db.QueryRow(query, symbol).Scan(
		&result.NumberOfTrades,
		&result.NumberOfWinningTrades,
		&result.NumberOfLosingTrades,
		&result.WinRate,
	)
	if err != nil {
		return types.TradeResult{}, fmt.Errorf("failed to calculate trade result: %w", err)
	}

	return result, nil
}

// calculateTradeHoldingTime calculates holding time statistics in seconds.
// Each buy is paired with the first sell after it; a buy never closed out
// is held until endTime.
func (b *BacktestState) calculateTradeHoldingTime(symbol string, endTime time.Time) (types.TradeHoldingTime, error) {
	query := `
		WITH buy_trades AS (
			SELECT executed_at
			FROM trades
			WHERE symbol = ? AND side = ?
		),
		sell_trades AS (
			SELECT executed_at
			FROM trades
			WHERE symbol = ? AND side = ?
		),
		trade_durations AS (
			SELECT
				EXTRACT(EPOCH FROM (COALESCE(
					(SELECT MIN(s.executed_at) FROM sell_trades s WHERE s.executed_at > b.executed_at),
					?
				) - b.executed_at)) as duration
			FROM buy_trades b
		)
		SELECT
			CAST(COALESCE(MIN(duration), 0) AS BIGINT) as min_duration,
			CAST(COALESCE(MAX(duration), 0) AS BIGINT) as max_duration,
			COALESCE(AVG(duration), 0) as avg_duration
		FROM trade_durations
	`

	var (
		holdingTime types.TradeHoldingTime
		avgDuration float64
	)

	err := b.db.QueryRow(query, symbol, types.PurchaseTypeBuy, symbol, types.PurchaseTypeSell, endTime).Scan(
		&holdingTime.Min,
		&holdingTime.Max,
		&avgDuration,
	)
	if err != nil {
		return types.TradeHoldingTime{}, fmt.Errorf("failed to calculate holding time: %w", err)
	}

	holdingTime.Avg = int(math.Round(avgDuration))

	return holdingTime, nil
}

// calculateTotalFees calculates the total commission paid for a symbol.
func (b *BacktestState) calculateTotalFees(symbol string) (float64, error) {
	query := b.sq.
		Select("COALESCE(SUM(commission), 0)").
		From("trades").
		Where(squirrel.Eq{"symbol": symbol}).
		RunWith(b.db)

	var totalFees float64
	if err := query.QueryRow().Scan(&totalFees); err != nil {
		return 0, fmt.Errorf("failed to calculate total fees: %w", err)
	}

	return totalFees, nil
}

// StatsContext carries the run-scoped inputs GetStats needs beyond the
// recorded tables. Open positions live on the ledger and final prices on the
// datasource, so both are handed in rather than derived from the journal.
type StatsContext struct {
	DataSource  datasource.DataSource
	Positions   []types.Position
	RunID       string
	Strategy    types.StrategyInfo
	DataPath    string
	Performance types.PerformanceMetrics

	TradesPath     string
	OrdersPath     string
	EquityPath     string
	RejectionsPath string
	MarksPath      string
}

func (ctx StatsContext) position(symbol string) optional.Option[types.Position] {
	for _, position := range ctx.Positions {
		if position.Symbol == symbol && position.Quantity > 0 {
			return optional.Some(position)
		}
	}

	return optional.None[types.Position]()
}

// GetStats returns the per-symbol statistics of the backtest.
func (b *BacktestState) GetStats(ctx StatsContext) ([]types.TradeStats, error) {
	selectQuery := b.sq.
		Select("DISTINCT symbol").
		From("trades").
		OrderBy("symbol").
		RunWith(b.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to get unique symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}

		symbols = append(symbols, symbol)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	var stats []types.TradeStats

	for _, symbol := range symbols {
		tradeResult, err := b.calculateTradeResult(symbol)
		if err != nil {
			return nil, err
		}

		lastData, err := ctx.DataSource.ReadLastData(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to get last market data for %s: %w", symbol, err)
		}

		holdingTime, err := b.calculateTradeHoldingTime(symbol, lastData.Time)
		if err != nil {
			return nil, err
		}

		totalFees, err := b.calculateTotalFees(symbol)
		if err != nil {
			return nil, err
		}

		pnlQuery := b.sq.
			Select(
				"COALESCE(SUM(pnl), 0) as realized",
				"COALESCE(MIN(pnl), 0) as max_loss",
				"COALESCE(MAX(pnl), 0) as max_profit",
			).
			From("trades").
			Where(squirrel.Eq{"symbol": symbol}).
			RunWith(b.db)

		tradePnl := types.TradePnl{}

		err = pnlQuery.QueryRow().Scan(&tradePnl.RealizedPnL, &tradePnl.MaximumLoss, &tradePnl.MaximumProfit)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate pnl: %w", err)
		}

		// Mark any open position at the final close.
		if position, err := ctx.position(symbol).Take(); err == nil {
			entryDec := decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(position.AverageEntryPrice))
			exitDec := decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(lastData.Close))
			tradePnl.UnrealizedPnL, _ = exitDec.Sub(entryDec).Float64()
		}

		tradePnl.TotalPnL = tradePnl.RealizedPnL + tradePnl.UnrealizedPnL

		buyAndHoldPnl, err := b.calculateBuyAndHoldPnl(symbol, lastData.Close)
		if err != nil {
			return nil, err
		}

		stats = append(stats, types.TradeStats{
			ID:                 ctx.RunID,
			Timestamp:          time.Now(),
			Symbol:             symbol,
			TradeResult:        tradeResult,
			TotalFees:          totalFees,
			TradeHoldingTime:   holdingTime,
			TradePnl:           tradePnl,
			BuyAndHoldPnl:      buyAndHoldPnl,
			Performance:        ctx.Performance,
			TradesFilePath:     ctx.TradesPath,
			OrdersFilePath:     ctx.OrdersPath,
			EquityFilePath:     ctx.EquityPath,
			RejectionsFilePath: ctx.RejectionsPath,
			MarksFilePath:      ctx.MarksPath,
			Strategy:           ctx.Strategy,
			DataPath:           ctx.DataPath,
		})
	}

	return stats, nil
}

// calculateBuyAndHoldPnl values holding the first buy until the final close.
func (b *BacktestState) calculateBuyAndHoldPnl(symbol string, lastClose float64) (float64, error) {
	firstBuyQuery := b.sq.
		Select("executed_price", "executed_qty").
		From("trades").
		Where(squirrel.Eq{"symbol": symbol, "side": types.PurchaseTypeBuy}).
		OrderBy("executed_at ASC").
		Limit(1).
		RunWith(b.db)

	var firstPrice, firstQty float64

	err := firstBuyQuery.QueryRow().Scan(&firstPrice, &firstQty)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to query first buy: %w", err)
	}

	pnl, _ := decimal.NewFromFloat(lastClose).
		Sub(decimal.NewFromFloat(firstPrice)).
		Mul(decimal.NewFromFloat(firstQty)).
		Float64()

	return pnl, nil
}
