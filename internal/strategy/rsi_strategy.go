package strategy

import (
	"fmt"

	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/andgamespace/backtest/internal/engine/engine_v1/cache"
	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/internal/version"
	"github.com/andgamespace/backtest/pkg/errors"
)

// RsiThresholdConfig selects the RSI window and the oversold/overbought
// levels. Zero values fall back to 14/30/70.
type RsiThresholdConfig struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

// RsiThreshold buys when the RSI drops through the oversold level and sells
// when it rises through the overbought level. The previous RSI reading lives
// in the cache so only the crossing bar fires, not every bar spent inside a
// zone.
type RsiThreshold struct {
	config RsiThresholdConfig
}

func NewRsiThreshold() Strategy {
	return &RsiThreshold{}
}

// Name implements Strategy.
func (r *RsiThreshold) Name() string {
	return "rsi_threshold"
}

// ApiVersion implements WithApiVersion.
func (r *RsiThreshold) ApiVersion() string {
	return version.Version
}

// Initialize implements Strategy.
func (r *RsiThreshold) Initialize(config string) error {
	var cfg RsiThresholdConfig
	if err := yaml.Unmarshal([]byte(config), &cfg); err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse rsi threshold config", err)
	}

	if cfg.Period < 0 {
		return errors.Newf(errors.ErrCodeStrategyConfigError, "invalid period: %d", cfg.Period)
	}

	if cfg.Oversold < 0 || cfg.Overbought > 100 {
		return errors.Newf(errors.ErrCodeStrategyConfigError, "thresholds must stay within [0, 100], got oversold=%f overbought=%f", cfg.Oversold, cfg.Overbought)
	}

	if cfg.Period == 0 {
		cfg.Period = 14
	}

	if cfg.Oversold == 0 {
		cfg.Oversold = 30
	}

	if cfg.Overbought == 0 {
		cfg.Overbought = 70
	}

	if cfg.Oversold >= cfg.Overbought {
		return errors.Newf(errors.ErrCodeStrategyConfigError, "oversold level must be below overbought level, got oversold=%f overbought=%f", cfg.Oversold, cfg.Overbought)
	}

	r.config = cfg

	return nil
}

// GenerateSignal implements Strategy.
func (r *RsiThreshold) GenerateSignal(ctx Context, data types.MarketData) (types.Signal, error) {
	rsiIndicator, err := ctx.IndicatorRegistry.GetIndicator(types.IndicatorTypeRSI)
	if err != nil {
		return types.Signal{}, err
	}

	rsi, err := rsiIndicator.RawValue(data.Symbol, data.Time, ctx.IndicatorContext(), r.config.Period)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return r.holdSignal(data, "Not enough history for RSI"), nil
		}

		return types.Signal{}, err
	}

	cacheV1, ok := ctx.Cache.(*cache.CacheV1)
	if !ok {
		return types.Signal{}, errors.New(errors.ErrCodeStrategyRuntimeError, "rsi threshold requires a CacheV1 cache")
	}

	if cacheV1.RsiState.IsNone() {
		cacheV1.RsiState = optional.Some(cache.RsiState{Symbol: data.Symbol})
	}

	state, err := cacheV1.RsiState.Take()
	if err != nil {
		return types.Signal{}, err
	}

	if state.Symbol != data.Symbol {
		state = cache.RsiState{Symbol: data.Symbol}
	}

	signal := r.holdSignal(data, "No threshold crossing")
	signal.RawValue = map[string]float64{
		"rsi": rsi,
	}

	if state.Initialized {
		switch {
		case rsi < r.config.Oversold && state.PrevRsi >= r.config.Oversold:
			signal.Action = types.SignalActionBuy
			signal.Reason = fmt.Sprintf("RSI dropped into oversold territory (value=%.2f)", rsi)
		case rsi > r.config.Overbought && state.PrevRsi <= r.config.Overbought:
			signal.Action = types.SignalActionSell
			signal.Reason = fmt.Sprintf("RSI rose into overbought territory (value=%.2f)", rsi)
		}
	}

	state.Initialized = true
	state.PrevRsi = rsi
	cacheV1.RsiState = optional.Some(state)

	if signal.Actionable() && ctx.Marker != nil {
		mark := types.Mark{
			MarketDataId: data.Id,
			Title:        r.Name(),
			Message:      signal.Reason,
			Category:     "threshold",
			Signal:       optional.Some(signal),
		}
		if err := ctx.Marker.Mark(data, mark); err != nil {
			return types.Signal{}, errors.Wrap(errors.ErrCodeStrategyRuntimeError, "failed to mark rsi signal", err)
		}
	}

	return signal, nil
}

func (r *RsiThreshold) holdSignal(data types.MarketData, reason string) types.Signal {
	return types.Signal{
		Time:   data.Time,
		Symbol: data.Symbol,
		Action: types.SignalActionNone,
		Name:   r.Name(),
		Reason: reason,
	}
}
