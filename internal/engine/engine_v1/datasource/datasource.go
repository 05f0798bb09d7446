package datasource

import (
	"time"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/moznion/go-optional"
)

// SQLResult represents a row of data from a SQL query
type SQLResult struct {
	Values map[string]interface{}
}

type DataSource interface {
	// Initialize loads market data from the given path. Parquet and CSV files
	// are supported; CSV headers may name the timestamp column either time or
	// datetime, and a missing symbol column is derived from the file name.
	Initialize(path string) error
	// ReadAll reads all the data from the data source in timestamp order and
	// yields it to the caller
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.MarketData, error) bool)
	// GetRange reads a range of data from the data source, optionally
	// re-bucketed to the given interval
	GetRange(start time.Time, end time.Time, interval optional.Option[types.Interval]) ([]types.MarketData, error)
	// ReadRecordsFromStart returns up to count bars beginning at the given
	// time, re-bucketed to the given interval
	ReadRecordsFromStart(start time.Time, count int, interval types.Interval) ([]types.MarketData, error)
	// ReadLastData reads the last data from the data source for a specific symbol
	ReadLastData(symbol string) (types.MarketData, error)
	// GetMarketData returns the bar for a symbol at an exact timestamp
	GetMarketData(symbol string, timestamp time.Time) (types.MarketData, error)
	// GetPreviousNumberOfDataPoints returns up to count bars ending at the
	// given time in chronological order
	GetPreviousNumberOfDataPoints(end time.Time, symbol string, count int) ([]types.MarketData, error)
	// GetAllSymbols returns all distinct symbols present in the data source
	GetAllSymbols() ([]string, error)
	// ExecuteSQL executes a raw SQL query and returns the results as SQLResult
	ExecuteSQL(query string, params ...interface{}) ([]SQLResult, error)
	// Count returns the number of rows in the data source
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Close closes the data source and releases any resources
	Close() error
}
