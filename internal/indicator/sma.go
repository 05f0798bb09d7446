package indicator

import (
	"fmt"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	cinar "github.com/cinar/indicator"
)

// SMA indicator implements Simple Moving Average calculation.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator with default configuration.
func NewSMA() Indicator {
	return &SMA{
		period: 20, // Default period
	}
}

// Name returns the name of the indicator.
func (s *SMA) Name() types.IndicatorType {
	return types.IndicatorTypeSMA
}

// Config configures the SMA indicator. Expected parameters: period (int).
func (s *SMA) Config(params ...any) error {
	if len(params) != 1 {
		return errors.New(errors.ErrCodeMissingParameter, "Config expects 1 parameter: period (int)")
	}

	period, ok := params[0].(int)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for period parameter, expected int")
	}

	if period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	s.period = period

	return nil
}

// GetSignal calculates the SMA for the current bar. The SMA on its own takes
// no side; strategies combine two of them for crossovers.
func (s *SMA) GetSignal(marketData types.MarketData, ctx IndicatorContext) (types.Signal, error) {
	smaValue, err := s.RawValue(marketData.Symbol, marketData.Time, ctx, s.period)
	if err != nil {
		return types.Signal{}, fmt.Errorf("failed to calculate SMA: %w", err)
	}

	signal := types.Signal{
		Time:   marketData.Time,
		Action: types.SignalActionNone,
		Name:   string(s.Name()),
		Reason: "SMA indicator calculated",
		RawValue: map[string]float64{
			"sma": smaValue,
		},
		Symbol:    marketData.Symbol,
		Indicator: s.Name(),
	}

	return signal, nil
}

// RawValue calculates the SMA value for a given symbol, time, context, and period.
// It accepts parameters: symbol (string), currentTime (time.Time), ctx (IndicatorContext), period (int).
func (s *SMA) RawValue(params ...any) (float64, error) {
	symbol, currentTime, ctx, err := parseWindowParams(params)
	if err != nil {
		return 0, err
	}

	period, err := parsePeriodParam(params, s.period)
	if err != nil {
		return 0, err
	}

	historicalData, err := ctx.DataSource.GetPreviousNumberOfDataPoints(currentTime, symbol, period)
	if err != nil {
		return 0, fmt.Errorf("failed to get historical data: %w", err)
	}

	if len(historicalData) == 0 {
		return 0, errors.Newf(errors.ErrCodeIndicatorCalculation, "no historical data available for symbol %s", symbol)
	}

	smaValues := cinar.Sma(period, extractCloses(historicalData))

	return lastValue(smaValues), nil
}
