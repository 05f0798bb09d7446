package indicator

import (
	"fmt"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	cinar "github.com/cinar/indicator"
)

// ATR represents the Average True Range indicator.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator with default configuration.
func NewATR() Indicator {
	return &ATR{
		period: 14, // Default period
	}
}

// Name returns the name of the indicator.
func (a *ATR) Name() types.IndicatorType {
	return types.IndicatorTypeATR
}

// Config configures the ATR indicator. Expected parameters: period (int).
func (a *ATR) Config(params ...any) error {
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

	a.period = period

	return nil
}

// GetSignal calculates the ATR signal. ATR measures volatility, so the signal
// never requests an order on its own.
func (a *ATR) GetSignal(marketData types.MarketData, ctx IndicatorContext) (types.Signal, error) {
	atrValue, err := a.RawValue(marketData.Symbol, marketData.Time, ctx, a.period)
	if err != nil {
		return types.Signal{}, err
	}

	return types.Signal{
		Time:   marketData.Time,
		Action: types.SignalActionNone,
		Name:   string(a.Name()),
		Reason: fmt.Sprintf("ATR value: %.4f", atrValue),
		RawValue: map[string]float64{
			"atr": atrValue,
		},
		Symbol:    marketData.Symbol,
		Indicator: a.Name(),
	}, nil
}

// RawValue returns the ATR for the latest bar. It accepts parameters:
// symbol (string), currentTime (time.Time), ctx (IndicatorContext), and an
// optional period (int) overriding the configured one.
func (a *ATR) RawValue(params ...any) (float64, error) {
	symbol, currentTime, ctx, err := parseWindowParams(params)
	if err != nil {
		return 0, err
	}

	period, err := parsePeriodParam(params, a.period)
	if err != nil {
		return 0, err
	}

	// One extra bar so the smoothing window is full.
	historicalData, err := ctx.DataSource.GetPreviousNumberOfDataPoints(currentTime, symbol, period+1)
	if err != nil {
		return 0, fmt.Errorf("failed to get historical data for symbol %s: %w", symbol, err)
	}

	if len(historicalData) == 0 {
		return 0, errors.Newf(errors.ErrCodeIndicatorCalculation, "no historical data available for symbol %s", symbol)
	}

	highs := extractHighs(historicalData)
	lows := extractLows(historicalData)
	closes := extractCloses(historicalData)

	_, atrValues := cinar.Atr(period, highs, lows, closes)

	return lastValue(atrValues), nil
}
