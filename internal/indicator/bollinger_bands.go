package indicator

import (
	"math"
	"time"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	cinar "github.com/cinar/indicator"
)

// BollingerBands implements the Indicator interface for Bollinger Bands.
type BollingerBands struct {
	period int     // Number of periods for moving average
	stdDev float64 // Number of standard deviations
}

// NewBollingerBands creates a new Bollinger Bands indicator with default configuration.
func NewBollingerBands() Indicator {
	return &BollingerBands{
		period: 20,  // Default period
		stdDev: 2.0, // Default standard deviation
	}
}

// Name returns the name of the indicator.
func (bb *BollingerBands) Name() types.IndicatorType {
	return types.IndicatorTypeBollingerBands
}

// Config configures the Bollinger Bands indicator. Expected parameters: period (int), stdDev (float64).
func (bb *BollingerBands) Config(params ...any) error {
	if len(params) != 2 {
		return errors.New(errors.ErrCodeMissingParameter, "Config expects 2 parameters: period (int), stdDev (float64)")
	}

	period, ok := params[0].(int)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for period parameter, expected int")
	}

	if period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "period must be a positive integer, got %d", period)
	}

	stdDev, ok := params[1].(float64)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for stdDev parameter, expected float64")
	}

	if stdDev <= 0 {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "stdDev must be a positive number, got %f", stdDev)
	}

	bb.period = period
	bb.stdDev = stdDev

	return nil
}

// GetSignal generates trading signals based on the close position relative to the bands.
func (bb *BollingerBands) GetSignal(marketData types.MarketData, ctx IndicatorContext) (types.Signal, error) {
	upper, middle, lower, err := bb.bands(marketData.Symbol, marketData.Time, ctx)
	if err != nil {
		// Not enough bars yet to fill the window, so stay out of the market.
		if errors.IsInsufficientDataError(err) {
			return types.Signal{
				Time:      marketData.Time,
				Action:    types.SignalActionNone,
				Name:      string(bb.Name()),
				Reason:    "Insufficient data for Bollinger Bands",
				Symbol:    marketData.Symbol,
				Indicator: bb.Name(),
			}, nil
		}

		return types.Signal{}, err
	}

	action := types.SignalActionNone
	reason := "Price within bands"

	currentPrice := marketData.Close

	if currentPrice < lower {
		action = types.SignalActionBuy
		reason = "Price below lower band"
	} else if currentPrice > upper {
		action = types.SignalActionSell
		reason = "Price above upper band"
	}

	return types.Signal{
		Time:   marketData.Time,
		Action: action,
		Name:   string(bb.Name()),
		Reason: reason,
		RawValue: map[string]float64{
			"upper":  upper,
			"middle": middle,
			"lower":  lower,
		},
		Symbol:    marketData.Symbol,
		Indicator: bb.Name(),
	}, nil
}

// RawValue returns the middle band (SMA) for the latest bar. It accepts
// parameters: symbol (string), currentTime (time.Time), ctx (IndicatorContext).
func (bb *BollingerBands) RawValue(params ...any) (float64, error) {
	symbol, currentTime, ctx, err := parseWindowParams(params)
	if err != nil {
		return 0, err
	}

	_, middle, _, err := bb.bands(symbol, currentTime, ctx)
	if err != nil {
		return 0, err
	}

	return middle, nil
}

// bands calculates the upper, middle, and lower band values at currentTime.
func (bb *BollingerBands) bands(symbol string, currentTime time.Time, ctx IndicatorContext) (upper, middle, lower float64, err error) {
	historicalData, err := ctx.DataSource.GetPreviousNumberOfDataPoints(currentTime, symbol, bb.period)
	if err != nil {
		return 0, 0, 0, err
	}

	closes := extractCloses(historicalData)

	middle = lastValue(cinar.Sma(bb.period, closes))

	var squaredDiffSum float64

	for _, price := range closes[len(closes)-bb.period:] {
		diff := price - middle
		squaredDiffSum += diff * diff
	}

	sd := math.Sqrt(squaredDiffSum / float64(bb.period))

	upper = middle + (bb.stdDev * sd)
	lower = middle - (bb.stdDev * sd)

	return upper, middle, lower, nil
}
