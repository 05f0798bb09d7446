package indicator

import (
	"fmt"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	cinar "github.com/cinar/indicator"
)

// MACD represents the Moving Average Convergence Divergence indicator.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator with default configuration.
func NewMACD() Indicator {
	return &MACD{
		fastPeriod:   12, // Default fast period
		slowPeriod:   26, // Default slow period
		signalPeriod: 9,  // Default signal period
	}
}

// Name returns the name of the indicator.
func (m *MACD) Name() types.IndicatorType {
	return types.IndicatorTypeMACD
}

// Config configures the MACD indicator. Expected parameters: fastPeriod (int), slowPeriod (int), signalPeriod (int).
func (m *MACD) Config(params ...any) error {
	if len(params) != 3 {
		return errors.New(errors.ErrCodeMissingParameter, "Config expects 3 parameters: fastPeriod (int), slowPeriod (int), signalPeriod (int)")
	}

	fastPeriod, ok := params[0].(int)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for fastPeriod parameter, expected int")
	}

	if fastPeriod <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "fastPeriod must be a positive integer, got %d", fastPeriod)
	}

	slowPeriod, ok := params[1].(int)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for slowPeriod parameter, expected int")
	}

	if slowPeriod <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "slowPeriod must be a positive integer, got %d", slowPeriod)
	}

	signalPeriod, ok := params[2].(int)
	if !ok {
		return errors.New(errors.ErrCodeInvalidType, "invalid type for signalPeriod parameter, expected int")
	}

	if signalPeriod <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "signalPeriod must be a positive integer, got %d", signalPeriod)
	}

	m.fastPeriod = fastPeriod
	m.slowPeriod = slowPeriod
	m.signalPeriod = signalPeriod

	return nil
}

// GetSignal calculates the MACD signal from the histogram sign.
func (m *MACD) GetSignal(marketData types.MarketData, ctx IndicatorContext) (types.Signal, error) {
	macdValue, err := m.RawValue(marketData.Symbol, marketData.Time, ctx)
	if err != nil {
		return types.Signal{}, err
	}

	action := types.SignalActionNone
	reason := "No signal"

	if macdValue > 0 {
		action = types.SignalActionBuy
		reason = fmt.Sprintf("MACD bullish (value=%.4f)", macdValue)
	} else if macdValue < 0 {
		action = types.SignalActionSell
		reason = fmt.Sprintf("MACD bearish (value=%.4f)", macdValue)
	}

	return types.Signal{
		Time:   marketData.Time,
		Action: action,
		Name:   string(m.Name()),
		Reason: reason,
		RawValue: map[string]float64{
			"macd": macdValue,
		},
		Symbol:    marketData.Symbol,
		Indicator: m.Name(),
	}, nil
}

// RawValue returns the MACD histogram (macd line minus signal line) for the
// latest bar. It accepts parameters: symbol (string), currentTime (time.Time),
// ctx (IndicatorContext).
func (m *MACD) RawValue(params ...any) (float64, error) {
	symbol, currentTime, ctx, err := parseWindowParams(params)
	if err != nil {
		return 0, err
	}

	// The slow EMA dominates the warmup requirement.
	window := (m.slowPeriod + m.signalPeriod) * 2

	historicalData, err := ctx.DataSource.GetPreviousNumberOfDataPoints(currentTime, symbol, window)
	if err != nil {
		return 0, fmt.Errorf("failed to get historical data for symbol %s: %w", symbol, err)
	}

	if len(historicalData) == 0 {
		return 0, errors.Newf(errors.ErrCodeIndicatorCalculation, "no historical data available for symbol %s", symbol)
	}

	closes := extractCloses(historicalData)

	fastEma := cinar.Ema(m.fastPeriod, closes)
	slowEma := cinar.Ema(m.slowPeriod, closes)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fastEma[i] - slowEma[i]
	}

	signalLine := cinar.Ema(m.signalPeriod, macdLine)

	return lastValue(macdLine) - lastValue(signalLine), nil
}
