package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/stretchr/testify/suite"
)

type MACDTestSuite struct {
	suite.Suite
	start time.Time
}

func TestMACDSuite(t *testing.T) {
	suite.Run(t, new(MACDTestSuite))
}

func (suite *MACDTestSuite) SetupTest() {
	suite.start = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
}

func (suite *MACDTestSuite) contextWithCloses(closes []float64) (IndicatorContext, time.Time) {
	bars := barsFromCloses("AAPL", suite.start, closes)

	ctx, cleanup, err := newFixtureContext(suite.T().TempDir(), bars)
	suite.Require().NoError(err)
	suite.T().Cleanup(cleanup)

	return ctx, bars[len(bars)-1].Time
}

func (suite *MACDTestSuite) TestNewMACD() {
	macd := NewMACD()
	suite.NotNil(macd)
	suite.Equal(types.IndicatorTypeMACD, macd.Name())

	macdImpl := macd.(*MACD)
	suite.Equal(12, macdImpl.fastPeriod)
	suite.Equal(26, macdImpl.slowPeriod)
	suite.Equal(9, macdImpl.signalPeriod)
}

func (suite *MACDTestSuite) TestConfig() {
	macd := NewMACD()
	macdImpl := macd.(*MACD)

	suite.NoError(macd.Config(5, 13, 4))
	suite.Equal(5, macdImpl.fastPeriod)
	suite.Equal(13, macdImpl.slowPeriod)
	suite.Equal(4, macdImpl.signalPeriod)
}

func (suite *MACDTestSuite) TestConfigErrors() {
	macd := NewMACD()

	err := macd.Config(12, 26)
	suite.Error(err)
	suite.Contains(err.Error(), "Config expects 3 parameters")

	err = macd.Config("fast", 26, 9)
	suite.Error(err)
	suite.Contains(err.Error(), "invalid type for fastPeriod")

	err = macd.Config(12, 0, 9)
	suite.Error(err)
	suite.Contains(err.Error(), "slowPeriod must be a positive integer")

	err = macd.Config(12, 26, -1)
	suite.Error(err)
	suite.Contains(err.Error(), "signalPeriod must be a positive integer")
}

func (suite *MACDTestSuite) TestRawValueFlatSeries() {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100.0
	}

	ctx, lastTime := suite.contextWithCloses(closes)

	macd := NewMACD()

	value, err := macd.RawValue("AAPL", lastTime, ctx)
	suite.Require().NoError(err)
	suite.InDelta(0.0, value, 1e-9)
}

func (suite *MACDTestSuite) TestGetSignalAcceleratingUptrend() {
	// Increments grow each bar, so momentum keeps building and the
	// histogram stays positive.
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 * math.Pow(1.01, float64(i))
	}

	ctx, lastTime := suite.contextWithCloses(closes)

	marketData := types.MarketData{
		Time:   lastTime,
		Symbol: "AAPL",
		Close:  closes[len(closes)-1],
	}

	macd := NewMACD()

	signal, err := macd.GetSignal(marketData, ctx)
	suite.Require().NoError(err)
	suite.Equal(types.SignalActionBuy, signal.Action)
	suite.Contains(signal.Reason, "MACD bullish")

	rawValues, ok := signal.RawValue.(map[string]float64)
	suite.Require().True(ok)
	suite.Greater(rawValues["macd"], 0.0)
}

func (suite *MACDTestSuite) TestGetSignalAcceleratingDowntrend() {
	// Losses grow each bar, keeping the histogram negative.
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 300 - 100*math.Pow(1.01, float64(i))
	}

	ctx, lastTime := suite.contextWithCloses(closes)

	marketData := types.MarketData{
		Time:   lastTime,
		Symbol: "AAPL",
		Close:  closes[len(closes)-1],
	}

	macd := NewMACD()

	signal, err := macd.GetSignal(marketData, ctx)
	suite.Require().NoError(err)
	suite.Equal(types.SignalActionSell, signal.Action)
	suite.Contains(signal.Reason, "MACD bearish")

	rawValues, ok := signal.RawValue.(map[string]float64)
	suite.Require().True(ok)
	suite.Less(rawValues["macd"], 0.0)
}

func (suite *MACDTestSuite) TestRawValueInsufficientData() {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	ctx, lastTime := suite.contextWithCloses(closes)

	macd := NewMACD()

	_, err := macd.RawValue("AAPL", lastTime, ctx)
	suite.Error(err)
}
