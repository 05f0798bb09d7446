package datasource

import (
	"path/filepath"
	"strings"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
)

func getIntervalMinutes(interval types.Interval) (int, error) {
	var intervalMinutes int

	switch interval {
	case types.Interval1m:
		intervalMinutes = 1
	case types.Interval5m:
		intervalMinutes = 5
	case types.Interval15m:
		intervalMinutes = 15
	case types.Interval30m:
		intervalMinutes = 30
	case types.Interval1h:
		intervalMinutes = 60
	case types.Interval4h:
		intervalMinutes = 240
	case types.Interval1d:
		intervalMinutes = 1440
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported interval: %s", interval)
	}

	return intervalMinutes, nil
}

// SymbolFromPath derives an instrument symbol from a data file name.
// "AAPL_2020.csv" and "aapl.parquet" both resolve to "AAPL".
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	if idx := strings.IndexAny(base, "_-"); idx > 0 {
		base = base[:idx]
	}

	return strings.ToUpper(base)
}
