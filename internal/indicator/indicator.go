package indicator

import (
	"github.com/andgamespace/backtest/internal/engine/engine_v1/cache"
	"github.com/andgamespace/backtest/internal/engine/engine_v1/datasource"
	"github.com/andgamespace/backtest/internal/types"
)

type IndicatorContext struct {
	DataSource        datasource.DataSource
	IndicatorRegistry IndicatorRegistry
	Cache             cache.Cache
}

// Indicator interface defines methods that any technical indicator must implement
type Indicator interface {
	// GetSignal evaluates the indicator at the given bar and returns a signal
	GetSignal(marketData types.MarketData, ctx IndicatorContext) (types.Signal, error)
	// Name returns the name of the indicator
	Name() types.IndicatorType
	// RawValue returns the raw value of the indicator
	RawValue(params ...any) (float64, error)
	Config(params ...any) error
}
