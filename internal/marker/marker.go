package marker

import "github.com/andgamespace/backtest/internal/types"

// Marker records annotations strategies and the engine attach to bars.
type Marker interface {
	// Mark attaches an annotation to the given bar
	Mark(marketData types.MarketData, mark types.Mark) error
	// GetMarks returns all recorded marks in time order
	GetMarks() ([]types.Mark, error)
}
