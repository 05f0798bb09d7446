package types

import "github.com/moznion/go-optional"

// Mark is a strategy annotation attached to one bar. Marks are recorded with
// the run results so a decision can be traced back to the data that caused
// it; they never influence execution.
type Mark struct {
	MarketDataId string
	Title        string
	Message      string
	Category     string
	Signal       optional.Option[Signal]
}
