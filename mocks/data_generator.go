package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/andgamespace/backtest/internal/types"
)

// DataGenerator produces synthetic OHLCV series for tests and benchmarks.
// All output derives from the seed, so a fixed seed gives identical series
// across runs.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a generator seeded with the given value.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig controls the shape of a generated series.
type GeneratorConfig struct {
	// Symbol stamped on every bar.
	Symbol string
	// StartTime of the first bar.
	StartTime time.Time
	// Interval between consecutive bars.
	Interval time.Duration
	// Count of bars to generate.
	Count int
	// InitialPrice the series opens at.
	InitialPrice float64
	// Volatility is the per-bar standard deviation of returns
	// (0.002 = 0.2% per bar).
	Volatility float64
	// Drift is the deterministic per-bar return added on top of the noise.
	// Positive drifts trend up, negative down.
	Drift float64
	// BaseVolume is the average volume per bar.
	BaseVolume float64
	// VolumeJitter scales the uniform volume noise, 0 to 1.
	VolumeJitter float64
}

// DefaultConfig returns a neutral minute-bar configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:       "TEST",
		StartTime:    time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Interval:     time.Minute,
		Count:        1000,
		InitialPrice: 100.0,
		Volatility:   0.002,
		Drift:        0.0,
		BaseVolume:   10000,
		VolumeJitter: 0.3,
	}
}

// Generate builds a geometric random walk of Count bars. Each bar opens at
// the previous close, and highs and lows always bracket the open-close
// range.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.MarketData {
	data := make([]types.MarketData, config.Count)
	price := config.InitialPrice
	barTime := config.StartTime

	for i := range data {
		open := price

		barReturn := config.Drift + config.Volatility*g.rng.NormFloat64()

		closePrice := open * (1 + barReturn)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		// Wicks extend past the body by up to half a volatility unit.
		highWick := g.rng.Float64() * config.Volatility * open * 0.5
		lowWick := g.rng.Float64() * config.Volatility * open * 0.5

		high := math.Max(open, closePrice) + highWick

		low := math.Min(open, closePrice) - lowWick
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volume := config.BaseVolume * (1 + (g.rng.Float64()*2-1)*config.VolumeJitter)
		if volume < 0 {
			volume = config.BaseVolume * 0.1
		}

		data[i] = types.MarketData{
			Id:     "",
			Symbol: config.Symbol,
			Time:   barTime,
			Open:   round(open, 4),
			High:   round(high, 4),
			Low:    round(low, 4),
			Close:  round(closePrice, 4),
			Volume: round(volume, 2),
		}

		price = closePrice
		barTime = barTime.Add(config.Interval)
	}

	return data
}

// GenerateMultiSymbol builds one series per symbol, varying the starting
// price and volatility so the symbols do not move in lockstep. Series are
// concatenated symbol by symbol.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) []types.MarketData {
	allData := make([]types.MarketData, 0, len(symbols)*baseConfig.Count)

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		allData = append(allData, g.Generate(config)...)
	}

	return allData
}

// GenerateSeries builds count bars for one symbol with default settings
// and a fixed seed.
func GenerateSeries(symbol string, count int) []types.MarketData {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Symbol = symbol
	config.Count = count

	return gen.Generate(config)
}

func round(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
