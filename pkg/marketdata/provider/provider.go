package provider

import (
	"context"
	"iter"
	"time"

	"github.com/polygon-io/client-go/rest/models"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	"github.com/andgamespace/backtest/pkg/marketdata/writer"
)

// ProviderType identifies a market data provider.
type ProviderType string

const (
	ProviderPolygon ProviderType = "polygon"
	ProviderBinance ProviderType = "binance"
)

// OnDownloadProgress reports download progress. Current and total are
// relative to the requested range, never absolute timestamps.
type OnDownloadProgress = func(current float64, total float64, message string)

// Provider downloads historical bars and streams live candles from one
// market data vendor.
type Provider interface {
	// ConfigWriter sets the writer the provider persists bars through.
	ConfigWriter(writer writer.MarketDataWriter)
	// Download fetches bars for the ticker over [startDate, endDate] at
	// multiplier x timespan resolution and writes them through the
	// configured writer. Cancel the context to abort between pages.
	Download(ctx context.Context, ticker string, startDate time.Time, endDate time.Time, multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (path string, err error)
	// Stream yields finalized candles for the symbols over a live
	// connection. Cancel the context to stop streaming.
	Stream(ctx context.Context, symbols []string, interval string) iter.Seq2[types.MarketData, error]
}

// NewMarketDataProvider creates a provider of the given type. The Polygon
// provider takes its API key as the config value.
func NewMarketDataProvider(providerType ProviderType, config any) (Provider, error) {
	switch providerType {
	case ProviderBinance:
		return NewBinanceClient()
	case ProviderPolygon:
		apiKey, ok := config.(string)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidProvider, "polygon provider requires an API key string config")
		}

		return NewPolygonClient(apiKey)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", providerType)
	}
}
