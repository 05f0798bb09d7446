package writer

import (
	"github.com/andgamespace/backtest/internal/types"
)

// MarketDataWriter persists downloaded or streamed bars to a destination,
// typically a Parquet file staged through DuckDB.
type MarketDataWriter interface {
	// Initialize sets up the writer, creating tables or files as needed.
	Initialize() error
	// Write persists a single bar.
	Write(data types.MarketData) error
	// Finalize completes the writing process and returns the output path.
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}
