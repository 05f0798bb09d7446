package indicator

import (
	"fmt"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	cinar "github.com/cinar/indicator"
)

// EMA indicator implements Exponential Moving Average calculation.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator with default configuration.
func NewEMA() Indicator {
	return &EMA{
		period: 20, // Default period
	}
}

// Name returns the name of the indicator.
func (e *EMA) Name() types.IndicatorType {
	return types.IndicatorTypeEMA
}

// Config configures the EMA indicator. Expected parameters: period (int).
func (e *EMA) Config(params ...any) error {
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

	e.period = period

	return nil
}

// GetSignal calculates the EMA signal based on market data.
func (e *EMA) GetSignal(marketData types.MarketData, ctx IndicatorContext) (types.Signal, error) {
	emaValue, err := e.RawValue(marketData.Symbol, marketData.Time, ctx, e.period)
	if err != nil {
		return types.Signal{}, fmt.Errorf("failed to calculate EMA: %w", err)
	}

	signal := types.Signal{
		Time:   marketData.Time,
		Action: types.SignalActionNone,
		Name:   string(e.Name()),
		Reason: "EMA indicator calculated",
		RawValue: map[string]float64{
			"ema": emaValue,
		},
		Symbol:    marketData.Symbol,
		Indicator: e.Name(),
	}

	return signal, nil
}

// RawValue calculates the EMA value for a given symbol, time, context, and period.
// It accepts parameters: symbol (string), currentTime (time.Time), ctx (IndicatorContext), period (int).
// The window pulls twice the period so the smoothing has bars to converge over.
func (e *EMA) RawValue(params ...any) (float64, error) {
	symbol, currentTime, ctx, err := parseWindowParams(params)
	if err != nil {
		return 0, err
	}

	period, err := parsePeriodParam(params, e.period)
	if err != nil {
		return 0, err
	}

	historicalData, err := ctx.DataSource.GetPreviousNumberOfDataPoints(currentTime, symbol, period*2)
	if err != nil {
		return 0, fmt.Errorf("failed to get historical data: %w", err)
	}

	if len(historicalData) == 0 {
		return 0, errors.Newf(errors.ErrCodeIndicatorCalculation, "no historical data available for symbol %s", symbol)
	}

	emaValues := cinar.Ema(period, extractCloses(historicalData))

	return lastValue(emaValues), nil
}
