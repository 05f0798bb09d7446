package testhelper

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/mocks"
	_ "github.com/marcboeker/go-duckdb"
)

// TrendSegment is one leg of a generated price series.
type TrendSegment struct {
	// Count of bars in the segment.
	Count int
	// Drift is the deterministic per-bar return applied during the segment.
	Drift float64
}

// TrendSeriesConfig controls the shared parameters of a trend series.
type TrendSeriesConfig struct {
	Symbol       string
	StartTime    time.Time
	Interval     time.Duration
	InitialPrice float64
	Volatility   float64
	Seed         int64
}

// DefaultTrendSeriesConfig returns a config suitable for intraday test data.
// The volatility is kept an order of magnitude below the segment drifts used
// in the scenarios, so the shape of the series is decided by the segments
// rather than by noise.
func DefaultTrendSeriesConfig(symbol string) TrendSeriesConfig {
	return TrendSeriesConfig{
		Symbol:       symbol,
		StartTime:    time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		Interval:     time.Minute,
		InitialPrice: 100.0,
		Volatility:   0.0005,
		Seed:         42,
	}
}

// GenerateTrendSeries builds one continuous series out of the given segments.
// Each segment opens at the previous segment's closing price and continues
// its timeline, so a decline segment followed by a rise segment produces a
// V-shaped series with a single turning point.
func GenerateTrendSeries(config TrendSeriesConfig, segments ...TrendSegment) []types.MarketData {
	gen := mocks.NewDataGenerator(config.Seed)

	price := config.InitialPrice
	barTime := config.StartTime

	var data []types.MarketData

	for _, segment := range segments {
		segmentConfig := mocks.DefaultConfig()
		segmentConfig.Symbol = config.Symbol
		segmentConfig.StartTime = barTime
		segmentConfig.Interval = config.Interval
		segmentConfig.Count = segment.Count
		segmentConfig.InitialPrice = price
		segmentConfig.Volatility = config.Volatility
		segmentConfig.Drift = segment.Drift

		segmentData := gen.Generate(segmentConfig)
		if len(segmentData) == 0 {
			continue
		}

		data = append(data, segmentData...)

		last := segmentData[len(segmentData)-1]
		price = last.Close
		barTime = last.Time.Add(config.Interval)
	}

	return data
}

// WriteToParquet writes market data to a Parquet file readable by the
// engine's data source.
func WriteToParquet(data []types.MarketData, outputPath string) error {
	if len(data) == 0 {
		return fmt.Errorf("no data to write")
	}

	// Create output directory if it doesn't exist
	outputDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Open in-memory DuckDB database
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open DuckDB connection: %w", err)
	}
	defer db.Close()

	// Create a table for market data
	_, err = db.Exec(`
		CREATE TABLE market_data (
			time TIMESTAMP,
			symbol VARCHAR,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Prepare insert statement
	stmt, err := db.Prepare(`
		INSERT INTO market_data (time, symbol, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	// Insert all data points
	for _, d := range data {
		_, err = stmt.Exec(d.Time, d.Symbol, d.Open, d.High, d.Low, d.Close, d.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert data: %w", err)
		}
	}

	// Export to parquet file
	_, err = db.Exec(fmt.Sprintf(`COPY market_data TO '%s' (FORMAT PARQUET)`, outputPath))
	if err != nil {
		return fmt.Errorf("failed to export to parquet: %w", err)
	}

	return nil
}

// GenerateAndWriteTrendSeries generates a trend series and writes it to a
// Parquet file in one step.
func GenerateAndWriteTrendSeries(config TrendSeriesConfig, outputPath string, segments ...TrendSegment) error {
	data := GenerateTrendSeries(config, segments...)

	return WriteToParquet(data, outputPath)
}
