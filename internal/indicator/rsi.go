package indicator

import (
	"fmt"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	cinar "github.com/cinar/indicator"
)

// RSI represents the Relative Strength Index indicator.
type RSI struct {
	period            int
	rsiLowerThreshold float64
	rsiUpperThreshold float64
}

// NewRSI creates a new RSI indicator with default configuration.
func NewRSI() Indicator {
	return &RSI{
		period:            14, // Default period
		rsiLowerThreshold: 30,
		rsiUpperThreshold: 70,
	}
}

// Name returns the name of the indicator.
func (r *RSI) Name() types.IndicatorType {
	return types.IndicatorTypeRSI
}

// Config configures the RSI indicator.
// Expected parameters: period (int), optionally lower threshold (float64) and
// upper threshold (float64).
func (r *RSI) Config(params ...any) error {
	if len(params) < 1 {
		return errors.New(errors.ErrCodeMissingParameter, "Config expects at least 1 parameter: period (int)")
	}

	period, ok := params[0].(int)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for period parameter, expected int")
	}

	if period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	r.period = period

	// setup thresholds
	if len(params) >= 2 {
		threshold, ok := params[1].(float64)
		if !ok {
			return errors.New(errors.ErrCodeInvalidType, "invalid type for lower threshold parameter, expected float64")
		}

		r.rsiLowerThreshold = threshold
	}

	if len(params) >= 3 {
		threshold, ok := params[2].(float64)
		if !ok {
			return errors.New(errors.ErrCodeInvalidType, "invalid type for upper threshold parameter, expected float64")
		}

		r.rsiUpperThreshold = threshold
	}

	return nil
}

// GetSignal calculates the RSI signal.
func (r *RSI) GetSignal(marketData types.MarketData, ctx IndicatorContext) (types.Signal, error) {
	rsiValue, err := r.RawValue(marketData.Symbol, marketData.Time, ctx, r.period)
	if err != nil {
		return types.Signal{}, err
	}

	action := types.SignalActionNone
	reason := "No signal"

	if rsiValue < r.rsiLowerThreshold {
		action = types.SignalActionBuy
		reason = fmt.Sprintf("RSI oversold (value=%.2f)", rsiValue)
	} else if rsiValue > r.rsiUpperThreshold {
		action = types.SignalActionSell
		reason = fmt.Sprintf("RSI overbought (value=%.2f)", rsiValue)
	}

	return types.Signal{
		Time:   marketData.Time,
		Action: action,
		Name:   string(r.Name()),
		Reason: reason,
		RawValue: map[string]float64{
			"rsi": rsiValue,
		},
		Symbol:    marketData.Symbol,
		Indicator: r.Name(),
	}, nil
}

// RawValue implements the Indicator interface.
func (r *RSI) RawValue(params ...any) (float64, error) {
	symbol, currentTime, ctx, err := parseWindowParams(params)
	if err != nil {
		return 0, err
	}

	period, err := parsePeriodParam(params, r.period)
	if err != nil {
		return 0, err
	}

	// One extra bar so the first price change is defined.
	historicalData, err := ctx.DataSource.GetPreviousNumberOfDataPoints(currentTime, symbol, period+1)
	if err != nil {
		return 0, fmt.Errorf("failed to get historical data for symbol %s: %w", symbol, err)
	}

	if len(historicalData) < period+1 {
		return 0, errors.Newf(errors.ErrCodeIndicatorCalculation, "insufficient historical data for RSI calculation for symbol %s", symbol)
	}

	_, rsiValues := cinar.RsiPeriod(period, extractCloses(historicalData))

	return lastValue(rsiValues), nil
}
