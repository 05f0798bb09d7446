package testhelper

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/andgamespace/backtest/internal/types"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestingT is an interface that matches testing.T
type TestingT interface {
	require.TestingT
	TempDir() string
}

// findResultFiles walks the results folder collecting files with the given
// base name. Run results are nested per run, strategy, config and data file,
// so a multi-run backtest yields several files per name.
func findResultFiles(tmpFolder string, name string) ([]string, error) {
	var paths []string

	err := filepath.Walk(tmpFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Base(path) == name {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", name, tmpFolder)
	}

	return paths, nil
}

// ReadStats reads trade stats from the results folder. Entries from all
// stats.yaml files are returned in walk order, one slice entry per symbol
// per run.
func ReadStats(t TestingT, tmpFolder string) ([]types.TradeStats, error) {
	statsPaths, err := findResultFiles(tmpFolder, "stats.yaml")
	if err != nil {
		return nil, err
	}

	var statsSlice []types.TradeStats

	for _, statsPath := range statsPaths {
		content, err := os.ReadFile(statsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read stats file %s: %w", statsPath, err)
		}

		var stats []types.TradeStats

		err = yaml.Unmarshal(content, &stats)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats file %s: %w", statsPath, err)
		}

		statsSlice = append(statsSlice, stats...)
	}

	return statsSlice, nil
}

// ReadTrades reads executed trades from parquet files in the results folder.
func ReadTrades(t TestingT, tmpFolder string) (trades []types.Trade, err error) {
	tradesPaths, err := findResultFiles(tmpFolder, "trades.parquet")
	if err != nil {
		return nil, err
	}

	for _, tradesPath := range tradesPaths {
		fileTrades, err := readTradesFromParquet(tradesPath)
		if err != nil {
			return nil, err
		}

		trades = append(trades, fileTrades...)
	}

	return trades, nil
}

func readTradesFromParquet(tradesPath string) ([]types.Trade, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	createViewSQL := fmt.Sprintf(`CREATE VIEW trades_view AS SELECT * FROM read_parquet('%s');`, tradesPath)

	_, err = db.Exec(createViewSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to create view from parquet file: %w", err)
	}

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := sq.
		Select(
			"order_id", "symbol", "side", "order_type", "quantity", "price",
			"timestamp", "status", "is_completed", "reason", "message", "strategy_name",
			"executed_at", "executed_qty", "reference_price", "executed_price",
			"commission", "pnl",
		).
		From("trades_view").
		OrderBy("executed_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var (
			trade         types.Trade
			order         types.Order
			status        string
			reason        string
			reasonMessage string
		)

		err := rows.Scan(
			&order.OrderID, &order.Symbol, &order.Side, &order.OrderType,
			&order.Quantity, &order.Price, &order.Timestamp, &status,
			&order.IsCompleted, &reason, &reasonMessage, &order.StrategyName,
			&trade.ExecutedAt, &trade.ExecutedQty, &trade.ReferencePrice,
			&trade.ExecutedPrice, &trade.Fee, &trade.PnL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}

		order.Status = types.OrderStatus(status)
		order.Reason = types.Reason{
			Reason:  reason,
			Message: reasonMessage,
		}

		trade.Order = order
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}

	return trades, nil
}

// ReadOrders reads orders from parquet files in the results folder.
func ReadOrders(t TestingT, tmpFolder string) (orders []types.Order, err error) {
	ordersPaths, err := findResultFiles(tmpFolder, "orders.parquet")
	if err != nil {
		return nil, err
	}

	for _, ordersPath := range ordersPaths {
		fileOrders, err := readOrdersFromParquet(ordersPath)
		if err != nil {
			return nil, err
		}

		orders = append(orders, fileOrders...)
	}

	return orders, nil
}

func readOrdersFromParquet(ordersPath string) ([]types.Order, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	createViewSQL := fmt.Sprintf(`CREATE VIEW orders_view AS SELECT * FROM read_parquet('%s');`, ordersPath)

	_, err = db.Exec(createViewSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to create view from parquet file: %w", err)
	}

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := sq.
		Select(
			"order_id", "symbol", "side", "order_type", "quantity", "price",
			"limit_price", "stop_price", "timestamp", "status", "is_completed",
			"reason", "message", "strategy_name", "fee",
		).
		From("orders_view").
		OrderBy("timestamp ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []types.Order

	for rows.Next() {
		var (
			order         types.Order
			limitPrice    sql.NullFloat64
			stopPrice     sql.NullFloat64
			status        string
			reason        string
			reasonMessage string
		)

		err := rows.Scan(
			&order.OrderID, &order.Symbol, &order.Side, &order.OrderType,
			&order.Quantity, &order.Price, &limitPrice, &stopPrice,
			&order.Timestamp, &status, &order.IsCompleted,
			&reason, &reasonMessage, &order.StrategyName, &order.Fee,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}

		if limitPrice.Valid {
			order.LimitPrice = optional.Some(limitPrice.Float64)
		}

		if stopPrice.Valid {
			order.StopPrice = optional.Some(stopPrice.Float64)
		}

		order.Status = types.OrderStatus(status)
		order.Reason = types.Reason{
			Reason:  reason,
			Message: reasonMessage,
		}

		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}

	return orders, nil
}

// ReadRejections reads rejected orders from parquet files in the results
// folder.
func ReadRejections(t TestingT, tmpFolder string) (rejections []types.Order, err error) {
	rejectionsPaths, err := findResultFiles(tmpFolder, "rejections.parquet")
	if err != nil {
		return nil, err
	}

	for _, rejectionsPath := range rejectionsPaths {
		fileRejections, err := readRejectionsFromParquet(rejectionsPath)
		if err != nil {
			return nil, err
		}

		rejections = append(rejections, fileRejections...)
	}

	return rejections, nil
}

func readRejectionsFromParquet(rejectionsPath string) ([]types.Order, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	createViewSQL := fmt.Sprintf(`CREATE VIEW rejections_view AS SELECT * FROM read_parquet('%s');`, rejectionsPath)

	_, err = db.Exec(createViewSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to create view from parquet file: %w", err)
	}

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := sq.
		Select(
			"order_id", "symbol", "side", "order_type", "quantity", "price",
			"timestamp", "reason", "message", "strategy_name",
		).
		From("rejections_view").
		OrderBy("timestamp ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	var rejections []types.Order

	for rows.Next() {
		var (
			order         types.Order
			reason        string
			reasonMessage string
		)

		err := rows.Scan(
			&order.OrderID, &order.Symbol, &order.Side, &order.OrderType,
			&order.Quantity, &order.Price, &order.Timestamp,
			&reason, &reasonMessage, &order.StrategyName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rejection row: %w", err)
		}

		order.Status = types.OrderStatusRejected
		order.Reason = types.Reason{
			Reason:  reason,
			Message: reasonMessage,
		}

		rejections = append(rejections, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rejection rows: %w", err)
	}

	return rejections, nil
}

// ReadEquity reads the equity history from parquet files in the results
// folder.
func ReadEquity(t TestingT, tmpFolder string) (equity []types.EquitySnapshot, err error) {
	equityPaths, err := findResultFiles(tmpFolder, "equity.parquet")
	if err != nil {
		return nil, err
	}

	for _, equityPath := range equityPaths {
		fileEquity, err := readEquityFromParquet(equityPath)
		if err != nil {
			return nil, err
		}

		equity = append(equity, fileEquity...)
	}

	return equity, nil
}

func readEquityFromParquet(equityPath string) ([]types.EquitySnapshot, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	createViewSQL := fmt.Sprintf(`CREATE VIEW equity_view AS SELECT * FROM read_parquet('%s');`, equityPath)

	_, err = db.Exec(createViewSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to create view from parquet file: %w", err)
	}

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := sq.
		Select("timestamp", "cash", "total_equity").
		From("equity_view").
		OrderBy("timestamp ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity history: %w", err)
	}
	defer rows.Close()

	var snapshots []types.EquitySnapshot

	for rows.Next() {
		var snapshot types.EquitySnapshot

		err := rows.Scan(&snapshot.Timestamp, &snapshot.Cash, &snapshot.TotalEquity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equity row: %w", err)
		}

		snapshots = append(snapshots, snapshot)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity rows: %w", err)
	}

	return snapshots, nil
}

// ReadMarks reads strategy marks from parquet files in the results folder.
func ReadMarks(t TestingT, tmpFolder string) (marks []types.Mark, err error) {
	marksPaths, err := findResultFiles(tmpFolder, "marks.parquet")
	if err != nil {
		return nil, err
	}

	for _, marksPath := range marksPaths {
		fileMarks, err := readMarksFromParquet(marksPath)
		if err != nil {
			return nil, err
		}

		marks = append(marks, fileMarks...)
	}

	return marks, nil
}

func readMarksFromParquet(marksPath string) ([]types.Mark, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	createViewSQL := fmt.Sprintf(`CREATE VIEW marks_view AS SELECT * FROM read_parquet('%s');`, marksPath)

	_, err = db.Exec(createViewSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to create view from parquet file: %w", err)
	}

	sq := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	query, args, err := sq.
		Select(
			"id", "market_data_id", "symbol", "time", "title", "message",
			"category", "signal_action", "signal_name",
		).
		From("marks_view").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query marks: %w", err)
	}
	defer rows.Close()

	var marks []types.Mark

	for rows.Next() {
		var (
			id           int
			mark         types.Mark
			symbol       string
			markTime     sql.NullTime
			signalAction string
			signalName   string
		)

		err := rows.Scan(
			&id,
			&mark.MarketDataId,
			&symbol,
			&markTime,
			&mark.Title,
			&mark.Message,
			&mark.Category,
			&signalAction,
			&signalName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mark row: %w", err)
		}

		if signalAction != "" {
			signal := types.Signal{
				Action: types.SignalAction(signalAction),
				Name:   signalName,
				Symbol: symbol,
			}
			if markTime.Valid {
				signal.Time = markTime.Time
			}

			mark.Signal = optional.Some(signal)
		} else {
			mark.Signal = optional.None[types.Signal]()
		}

		marks = append(marks, mark)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mark rows: %w", err)
	}

	return marks, nil
}
