package engine

import (
	"fmt"
	"math"

	"github.com/moznion/go-optional"

	"github.com/andgamespace/backtest/internal/types"
)

// grossExposureCeiling is the hard leverage ceiling: a fill whose notional
// doubled exceeds the account balance is vetoed regardless of configuration.
const grossExposureCeiling = 2.0

// RiskGate is the pre-fill decision function. Every check is fail-closed:
// any one breached limit vetoes the fill, and a veto leaves cash, positions,
// and the trade log untouched. Checks whose inputs are absent are skipped,
// so unconfigured limits are permissive.
type RiskGate struct {
	maxDrawdown         optional.Option[float64]
	volatilityThreshold optional.Option[float64]
}

func NewRiskGate(maxDrawdown optional.Option[float64], volatilityThreshold optional.Option[float64]) *RiskGate {
	return &RiskGate{
		maxDrawdown:         maxDrawdown,
		volatilityThreshold: volatilityThreshold,
	}
}

// Allow evaluates one prospective fill. The returned reason is empty when
// the fill passes; otherwise it names the breached limit.
func (g *RiskGate) Allow(positionSize float64, accountBalance float64, history []types.EquitySnapshot, currentPrice optional.Option[float64], entryPrice optional.Option[float64]) (bool, string) {
	if positionSize*grossExposureCeiling > accountBalance {
		return false, fmt.Sprintf("position notional %.2f exceeds the %.0fx exposure ceiling for balance %.2f", positionSize, grossExposureCeiling, accountBalance)
	}

	if g.maxDrawdown.IsSome() && len(history) > 0 {
		peak := history[0].TotalEquity
		for _, snapshot := range history {
			if snapshot.TotalEquity > peak {
				peak = snapshot.TotalEquity
			}
		}

		latest := history[len(history)-1].TotalEquity
		if peak > 0 {
			drawdown := (peak - latest) / peak
			if drawdown > g.maxDrawdown.Unwrap() {
				return false, fmt.Sprintf("drawdown %.4f exceeds the configured limit %.4f", drawdown, g.maxDrawdown.Unwrap())
			}
		}
	}

	if g.volatilityThreshold.IsSome() && currentPrice.IsSome() && entryPrice.IsSome() {
		entry := entryPrice.Unwrap()
		if entry > 0 {
			deviation := math.Abs(currentPrice.Unwrap()-entry) / entry
			if deviation > g.volatilityThreshold.Unwrap() {
				return false, fmt.Sprintf("price deviation %.4f from entry exceeds the volatility threshold %.4f", deviation, g.volatilityThreshold.Unwrap())
			}
		}
	}

	return true, ""
}
