package types

import "time"

// Interval is the bar aggregation interval of a data source.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// ProviderConnectionStatus reports whether a streaming market data
// provider currently holds a live connection.
type ProviderConnectionStatus string

const (
	ProviderStatusConnected    ProviderConnectionStatus = "connected"
	ProviderStatusDisconnected ProviderConnectionStatus = "disconnected"
)

// MarketData is one OHLCV bar for an instrument at a point in time.
type MarketData struct {
	Id     string    `csv:"id"`
	Symbol string    `csv:"symbol"`
	Time   time.Time `csv:"time"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume float64   `csv:"volume"`
}
