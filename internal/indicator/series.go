package indicator

import (
	"time"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
)

// extractCloses returns the close prices of the given bars in order.
func extractCloses(data []types.MarketData) []float64 {
	closes := make([]float64, len(data))
	for i, d := range data {
		closes[i] = d.Close
	}

	return closes
}

// extractHighs returns the high prices of the given bars in order.
func extractHighs(data []types.MarketData) []float64 {
	highs := make([]float64, len(data))
	for i, d := range data {
		highs[i] = d.High
	}

	return highs
}

// extractLows returns the low prices of the given bars in order.
func extractLows(data []types.MarketData) []float64 {
	lows := make([]float64, len(data))
	for i, d := range data {
		lows[i] = d.Low
	}

	return lows
}

// lastValue returns the final element of a series, or 0 for an empty one.
func lastValue(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	return series[len(series)-1]
}

// parseWindowParams validates the common RawValue parameter prefix shared by
// all indicators: symbol (string), currentTime (time.Time), ctx (IndicatorContext).
func parseWindowParams(params []any) (string, time.Time, IndicatorContext, error) {
	if len(params) < 3 {
		return "", time.Time{}, IndicatorContext{}, errors.New(errors.ErrCodeMissingParameter, "RawValue requires at least 3 parameters: symbol (string), currentTime (time.Time), ctx (IndicatorContext)")
	}

	symbol, ok := params[0].(string)
	if !ok {
		return "", time.Time{}, IndicatorContext{}, errors.New(errors.ErrCodeInvalidType, "first parameter must be of type string (symbol)")
	}

	currentTime, ok := params[1].(time.Time)
	if !ok {
		return "", time.Time{}, IndicatorContext{}, errors.New(errors.ErrCodeInvalidType, "second parameter must be of type time.Time")
	}

	ctx, ok := params[2].(IndicatorContext)
	if !ok {
		return "", time.Time{}, IndicatorContext{}, errors.New(errors.ErrCodeInvalidType, "third parameter must be of type IndicatorContext")
	}

	return symbol, currentTime, ctx, nil
}

// parsePeriodParam reads an optional period override from the fourth RawValue
// parameter, falling back to the configured default.
func parsePeriodParam(params []any, fallback int) (int, error) {
	period := fallback

	if len(params) >= 4 {
		p, ok := params[3].(int)
		if !ok {
			return 0, errors.New(errors.ErrCodeInvalidType, "fourth parameter must be of type int (period)")
		}

		period = p
	}

	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	return period, nil
}
