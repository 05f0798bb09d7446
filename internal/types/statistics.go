package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TradeHoldingTime struct {
	// Minimum holding time of a trade in seconds
	Min int `yaml:"min"`
	// Maximum holding time of a trade in seconds
	Max int `yaml:"max"`
	// Average holding time of a trade in seconds
	Avg int `yaml:"avg"`
}

type TradePnl struct {
	// Realized PnL. By adding all the sell trades' pnl.
	RealizedPnL float64 `yaml:"realized_pnl"`
	// Unrealized PnL. Open quantity marked at the final market price.
	UnrealizedPnL float64 `yaml:"unrealized_pnl"`
	// Total PnL. By adding RealizedPnL and UnrealizedPnL.
	TotalPnL float64 `yaml:"total_pnl"`
	// Maximum loss. Find all realized pnl's minimum value.
	MaximumLoss float64 `yaml:"maximum_loss"`
	// Maximum profit. Find all realized pnl's maximum value.
	MaximumProfit float64 `yaml:"maximum_profit"`
}

type TradeResult struct {
	// Count of all trades.
	NumberOfTrades int `yaml:"number_of_trades"`
	// Count of winning trades that has positive pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// Count of losing trades that has negative pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// Win rate.
	WinRate float64 `yaml:"win_rate"`
}

// PerformanceMetrics is the analyzer's report over an equity history.
// Ratio fields are pointers: a nil value means the metric is undefined for
// this history (no downside returns, zero drawdown, zero variance) and is
// serialized as null rather than a misleading zero.
type PerformanceMetrics struct {
	// InsufficientData is true when the history holds fewer than two
	// snapshots; all other fields are then zero values.
	InsufficientData bool `yaml:"insufficient_data"`
	// SampleCount is the number of return observations (snapshots - 1).
	SampleCount int `yaml:"sample_count"`
	// FinalValue is the last recorded total equity.
	FinalValue float64 `yaml:"final_value"`
	// TotalPnL is final equity minus starting equity.
	TotalPnL float64 `yaml:"total_pnl"`
	// AnnualReturn is the mean per-bar return scaled by 252 trading days.
	AnnualReturn *float64 `yaml:"annual_return"`
	SharpeRatio  *float64 `yaml:"sharpe_ratio"`
	SortinoRatio *float64 `yaml:"sortino_ratio"`
	// MaxDrawdown is the deepest peak-to-trough decline of the cumulative
	// return series, as a negative fraction.
	MaxDrawdown *float64 `yaml:"max_drawdown"`
	CalmarRatio *float64 `yaml:"calmar_ratio"`
}

// StrategyInfo contains metadata about the strategy that generated stats.
type StrategyInfo struct {
	// Name is the human-readable name of the strategy
	Name string `yaml:"name" json:"name"`
	// ApiVersion is the strategy API version the strategy was built against
	ApiVersion string `yaml:"api_version" json:"api_version"`
}

type TradeStats struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Symbol of the instrument traded.
	Symbol string `yaml:"symbol"`
	// Result of all trades.
	TradeResult TradeResult `yaml:"trade_result"`
	// Total fees.
	TotalFees float64 `yaml:"total_fees"`
	// Holding time of all trades.
	TradeHoldingTime TradeHoldingTime `yaml:"trade_holding_time"`
	// PnL of all trades.
	TradePnl TradePnl `yaml:"trade_pnl"`
	// Buy and hold PnL.
	BuyAndHoldPnl float64 `yaml:"buy_and_hold_pnl"`
	// Performance holds the return-based metrics over the equity history.
	Performance PerformanceMetrics `yaml:"performance"`
	// TradesFilePath is the path to the trades parquet file.
	TradesFilePath string `yaml:"trades_file_path" json:"trades_file_path"`
	// OrdersFilePath is the path to the orders parquet file.
	OrdersFilePath string `yaml:"orders_file_path" json:"orders_file_path"`
	// EquityFilePath is the path to the equity history parquet file.
	EquityFilePath string `yaml:"equity_file_path" json:"equity_file_path"`
	// RejectionsFilePath is the path to the rejected-trades parquet file.
	RejectionsFilePath string `yaml:"rejections_file_path" json:"rejections_file_path"`
	// MarksFilePath is the path to the marks parquet file.
	MarksFilePath string `yaml:"marks_file_path" json:"marks_file_path"`
	// Strategy contains metadata about the strategy that generated these stats.
	Strategy StrategyInfo `yaml:"strategy" json:"strategy"`
	// DataPath is the path to the market data file used for this backtest.
	DataPath string `yaml:"data_path" json:"data_path"`
}

func WriteTradeStats(path string, stats []TradeStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal trade stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trade stats to file: %w", err)
	}

	return nil
}
