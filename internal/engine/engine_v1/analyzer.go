package engine

import (
	"math"

	"github.com/andgamespace/backtest/internal/types"
)

// tradingDaysPerYear annualizes per-bar return statistics.
const tradingDaysPerYear = 252

// AnalyzePerformance derives return-based statistics from an equity history.
// It is a pure function of its inputs: re-running it on an unchanged history
// yields identical metrics. Fewer than two snapshots is a degenerate input,
// reported via InsufficientData rather than an error. Ratios whose
// denominator degenerates to zero are left nil, never coerced to zero.
func AnalyzePerformance(history []types.EquitySnapshot, riskFreeRate float64) types.PerformanceMetrics {
	if len(history) < 2 {
		return types.PerformanceMetrics{InsufficientData: true}
	}

	returns := pctChange(history)
	meanReturn := mean(returns)
	annualReturn := meanReturn * tradingDaysPerYear
	excessMean := meanReturn - riskFreeRate/tradingDaysPerYear

	metrics := types.PerformanceMetrics{
		SampleCount:  len(returns),
		FinalValue:   history[len(history)-1].TotalEquity,
		TotalPnL:     history[len(history)-1].TotalEquity - history[0].TotalEquity,
		AnnualReturn: &annualReturn,
	}

	if deviation := stddev(returns); deviation > 0 {
		sharpe := excessMean / deviation * math.Sqrt(tradingDaysPerYear)
		metrics.SharpeRatio = &sharpe
	}

	var downside []float64

	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	if deviation := stddev(downside); deviation > 0 {
		sortino := excessMean / (deviation * math.Sqrt(tradingDaysPerYear))
		metrics.SortinoRatio = &sortino
	}

	drawdown := deepestDrawdown(returns)
	metrics.MaxDrawdown = &drawdown

	if drawdown != 0 {
		calmar := annualReturn / math.Abs(drawdown)
		metrics.CalmarRatio = &calmar
	}

	return metrics
}

// pctChange converts an equity series into per-snapshot fractional returns.
func pctChange(history []types.EquitySnapshot) []float64 {
	returns := make([]float64, 0, len(history)-1)

	for i := 1; i < len(history); i++ {
		previous := history[i-1].TotalEquity
		returns = append(returns, (history[i].TotalEquity-previous)/previous)
	}

	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	avg := mean(values)

	var variance float64
	for _, v := range values {
		variance += (v - avg) * (v - avg)
	}

	variance /= float64(len(values))

	return math.Sqrt(variance)
}

// deepestDrawdown walks the cumulative return series against its running
// maximum and returns the deepest decline as a negative fraction, or 0 for
// a series that never falls below a previous peak.
func deepestDrawdown(returns []float64) float64 {
	cumulative := 1.0
	runningMax := 1.0
	deepest := 0.0

	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > runningMax {
			runningMax = cumulative
		}

		if drawdown := (cumulative - runningMax) / runningMax; drawdown < deepest {
			deepest = drawdown
		}
	}

	return deepest
}
