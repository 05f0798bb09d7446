package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/andgamespace/backtest/internal/logger"
	"github.com/andgamespace/backtest/internal/types"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
)

// BacktestMarker implements the Marker interface for backtesting purposes.
// It records bar annotations in a DuckDB database so they can be exported
// with the rest of the run results.
type BacktestMarker struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewBacktestMarker creates a new instance of BacktestMarker.
func NewBacktestMarker(logger *logger.Logger) (*BacktestMarker, error) {
	// Create an in-memory DuckDB database
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))

		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection to ensure database is properly initialized
	if err := db.Ping(); err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		db.Close()

		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	marker := &BacktestMarker{
		logger: logger,
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	// Initialize the database tables
	if err := marker.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return marker, nil
}

// Mark implements the Marker interface. It attaches an annotation to the given bar.
func (m *BacktestMarker) Mark(marketData types.MarketData, mark types.Mark) error {
	// Check for nil fields
	if m == nil || m.db == nil {
		return fmt.Errorf("backtest marker or database is nil")
	}

	// Get the next ID from the sequence
	var nextID int

	err := m.db.QueryRow("SELECT nextval('mark_id_seq')").Scan(&nextID)
	if err != nil {
		return fmt.Errorf("failed to get next ID from sequence: %w", err)
	}

	signalAction := ""
	signalName := ""

	if signal, err := mark.Signal.Take(); err == nil {
		signalAction = string(signal.Action)
		signalName = signal.Name
	}

	// Insert the mark using Squirrel
	insertQuery := m.sq.
		Insert("marks").
		Columns(
			"id", "market_data_id", "symbol", "time", "open", "high", "low", "close", "volume",
			"title", "message", "category", "signal_action", "signal_name",
		).
		Values(
			nextID, mark.MarketDataId, marketData.Symbol, marketData.Time, marketData.Open,
			marketData.High, marketData.Low, marketData.Close, marketData.Volume,
			mark.Title, mark.Message, mark.Category, signalAction, signalName,
		).
		RunWith(m.db)

	_, err = insertQuery.Exec()
	if err != nil {
		return fmt.Errorf("failed to insert mark: %w", err)
	}

	return nil
}

// GetMarks implements the Marker interface. It returns all recorded marks.
func (m *BacktestMarker) GetMarks() ([]types.Mark, error) {
	// Check for nil fields
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("backtest marker or database is nil")
	}

	// Query all marks using Squirrel
	selectQuery := m.sq.
		Select(
			"market_data_id", "symbol", "time", "title", "message", "category",
			"signal_action", "signal_name",
		).
		From("marks").
		OrderBy("time ASC").
		RunWith(m.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query marks: %w", err)
	}
	defer rows.Close()

	var marks []types.Mark

	for rows.Next() {
		var mark types.Mark

		var symbol string

		var markTime sql.NullTime

		var signalAction string

		var signalName string

		err := rows.Scan(
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
			return nil, fmt.Errorf("failed to scan mark: %w", err)
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
		return nil, fmt.Errorf("error iterating marks: %w", err)
	}

	return marks, nil
}

// Write saves the marks to a Parquet file in the specified directory.
func (m *BacktestMarker) Write(path string) error {
	// Check for nil fields
	if m == nil || m.db == nil || m.logger == nil {
		return fmt.Errorf("backtest marker, database, or logger is nil")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Export marks to Parquet
	marksPath := filepath.Join(path, "marks.parquet")

	_, err := m.db.Exec(fmt.Sprintf(`COPY marks TO '%s' (FORMAT PARQUET)`, marksPath))
	if err != nil {
		return fmt.Errorf("failed to export marks to Parquet: %w", err)
	}

	m.logger.Info("Successfully exported marks to Parquet file",
		zap.String("marks", marksPath),
	)

	return nil
}

// Cleanup resets the database state.
func (m *BacktestMarker) Cleanup() error {
	// Check for nil db
	if m == nil || m.db == nil {
		return fmt.Errorf("backtest marker or database is nil")
	}

	// Use raw SQL for dropping table and sequence
	_, err := m.db.Exec(`
		DROP TABLE IF EXISTS marks;
		DROP SEQUENCE IF EXISTS mark_id_seq;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup marks table: %w", err)
	}

	// Reinitialize
	return m.initialize()
}

// Close closes the database connection.
func (m *BacktestMarker) Close() error {
	if m == nil || m.db == nil {
		return nil
	}

	return m.db.Close()
}

// initialize creates the necessary tables for storing marks.
func (m *BacktestMarker) initialize() error {
	// Check for nil db
	if m == nil || m.db == nil {
		return fmt.Errorf("backtest marker or database is nil")
	}

	// Create sequence for mark IDs
	_, err := m.db.Exec(`CREATE SEQUENCE IF NOT EXISTS mark_id_seq`)
	if err != nil {
		return fmt.Errorf("failed to create sequence: %w", err)
	}

	// Create marks table
	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS marks (
			id INTEGER PRIMARY KEY,
			market_data_id TEXT,
			symbol TEXT,
			time TIMESTAMP,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE,
			title TEXT,
			message TEXT,
			category TEXT,
			signal_action TEXT,
			signal_name TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create marks table: %w", err)
	}

	return nil
}
