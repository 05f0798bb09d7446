package strategy

import (
	"github.com/andgamespace/backtest/internal/engine/engine_v1/cache"
	"github.com/andgamespace/backtest/internal/engine/engine_v1/datasource"
	"github.com/andgamespace/backtest/internal/indicator"
	"github.com/andgamespace/backtest/internal/marker"
	"github.com/andgamespace/backtest/internal/types"
)

// Context carries the engine facilities available to a strategy while it
// evaluates a bar. Strategies read history and indicators through the
// context and return a signal; order placement and accounting stay on the
// engine side.
type Context struct {
	// DataSource provides the market data as well as the historical data
	DataSource datasource.DataSource
	// IndicatorRegistry is the registry of all indicators
	IndicatorRegistry indicator.IndicatorRegistry
	// Cache holds per-run strategy state between bars
	Cache cache.Cache
	// Marker is used to mark a point in time with a signal and a reason
	Marker marker.Marker
}

// IndicatorContext narrows the strategy context down to what indicator
// calculations need.
func (c Context) IndicatorContext() indicator.IndicatorContext {
	return indicator.IndicatorContext{
		DataSource:        c.DataSource,
		IndicatorRegistry: c.IndicatorRegistry,
		Cache:             c.Cache,
	}
}

// Strategy is the contract an in-process trading strategy implements.
// Strategies should be stateless - per-run state belongs in the cache, and
// position and order management is handled by the engine.
type Strategy interface {
	// Initialize configures the strategy from a YAML config string.
	Initialize(config string) error
	// GenerateSignal evaluates one bar and returns the strategy's decision.
	GenerateSignal(ctx Context, data types.MarketData) (types.Signal, error)
	// Name returns the name of the strategy.
	Name() string
}

// WithApiVersion is implemented by strategies that declare the engine API
// version they were written against. The engine refuses to run a strategy
// whose declared version is incompatible with its own.
type WithApiVersion interface {
	ApiVersion() string
}
