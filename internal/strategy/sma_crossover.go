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

// SmaCrossoverConfig selects the fast and slow moving-average windows.
type SmaCrossoverConfig struct {
	FastPeriod int `yaml:"fastPeriod"`
	SlowPeriod int `yaml:"slowPeriod"`
}

// SmaCrossover buys when the fast SMA crosses above the slow SMA and sells
// when it crosses back below. The previous pair of averages lives in the
// cache so the crossing bar itself is detectable.
type SmaCrossover struct {
	config SmaCrossoverConfig
}

func NewSmaCrossover() Strategy {
	return &SmaCrossover{}
}

// Name implements Strategy.
func (s *SmaCrossover) Name() string {
	return "sma_crossover"
}

// ApiVersion implements WithApiVersion.
func (s *SmaCrossover) ApiVersion() string {
	return version.Version
}

// Initialize implements Strategy. Zero periods fall back to 5/20.
func (s *SmaCrossover) Initialize(config string) error {
	var cfg SmaCrossoverConfig
	if err := yaml.Unmarshal([]byte(config), &cfg); err != nil {
		return errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse sma crossover config", err)
	}

	if cfg.FastPeriod < 0 || cfg.SlowPeriod < 0 {
		return errors.Newf(errors.ErrCodeStrategyConfigError, "invalid periods: fast=%d, slow=%d", cfg.FastPeriod, cfg.SlowPeriod)
	}

	if cfg.FastPeriod == 0 {
		cfg.FastPeriod = 5
	}

	if cfg.SlowPeriod == 0 {
		cfg.SlowPeriod = 20
	}

	if cfg.FastPeriod >= cfg.SlowPeriod {
		return errors.Newf(errors.ErrCodeStrategyConfigError, "fast period must be less than slow period, got fast=%d slow=%d", cfg.FastPeriod, cfg.SlowPeriod)
	}

	s.config = cfg

	return nil
}

// GenerateSignal implements Strategy.
func (s *SmaCrossover) GenerateSignal(ctx Context, data types.MarketData) (types.Signal, error) {
	sma, err := ctx.IndicatorRegistry.GetIndicator(types.IndicatorTypeSMA)
	if err != nil {
		return types.Signal{}, err
	}

	indicatorCtx := ctx.IndicatorContext()

	fast, err := sma.RawValue(data.Symbol, data.Time, indicatorCtx, s.config.FastPeriod)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return s.holdSignal(data, "Not enough history for the fast average"), nil
		}

		return types.Signal{}, err
	}

	slow, err := sma.RawValue(data.Symbol, data.Time, indicatorCtx, s.config.SlowPeriod)
	if err != nil {
		if errors.IsInsufficientDataError(err) {
			return s.holdSignal(data, "Not enough history for the slow average"), nil
		}

		return types.Signal{}, err
	}

	cacheV1, ok := ctx.Cache.(*cache.CacheV1)
	if !ok {
		return types.Signal{}, errors.New(errors.ErrCodeStrategyRuntimeError, "sma crossover requires a CacheV1 cache")
	}

	if cacheV1.CrossoverState.IsNone() {
		cacheV1.CrossoverState = optional.Some(cache.CrossoverState{Symbol: data.Symbol})
	}

	state, err := cacheV1.CrossoverState.Take()
	if err != nil {
		return types.Signal{}, err
	}

	if state.Symbol != data.Symbol {
		state = cache.CrossoverState{Symbol: data.Symbol}
	}

	signal := s.holdSignal(data, "No crossover")
	signal.RawValue = map[string]float64{
		"fast": fast,
		"slow": slow,
	}

	if state.Initialized {
		switch {
		case fast > slow && state.PrevFast <= state.PrevSlow:
			signal.Action = types.SignalActionBuy
			signal.Reason = fmt.Sprintf("Fast SMA crossed above slow SMA (fast=%.4f, slow=%.4f)", fast, slow)
		case fast < slow && state.PrevFast >= state.PrevSlow:
			signal.Action = types.SignalActionSell
			signal.Reason = fmt.Sprintf("Fast SMA crossed below slow SMA (fast=%.4f, slow=%.4f)", fast, slow)
		}
	}

	state.Initialized = true
	state.PrevFast = fast
	state.PrevSlow = slow
	cacheV1.CrossoverState = optional.Some(state)

	if signal.Actionable() && ctx.Marker != nil {
		mark := types.Mark{
			MarketDataId: data.Id,
			Title:        s.Name(),
			Message:      signal.Reason,
			Category:     "crossover",
			Signal:       optional.Some(signal),
		}
		if err := ctx.Marker.Mark(data, mark); err != nil {
			return types.Signal{}, errors.Wrap(errors.ErrCodeStrategyRuntimeError, "failed to mark crossover signal", err)
		}
	}

	return signal, nil
}

func (s *SmaCrossover) holdSignal(data types.MarketData, reason string) types.Signal {
	return types.Signal{
		Time:   data.Time,
		Symbol: data.Symbol,
		Action: types.SignalActionNone,
		Name:   s.Name(),
		Reason: reason,
	}
}
