package provider

import (
	"context"
	"iter"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
)

// streamEventBuffer bounds the fan-in channel between exchange callbacks
// and the consuming iterator.
const streamEventBuffer = 256

// Kline event types from the exchange SDK, re-exported so callers and
// tests do not import it directly.
type (
	BinanceWsKlineEvent = binance.WsKlineEvent
	BinanceWsKline      = binance.WsKline
	WsKlineHandler      = binance.WsKlineHandler
	WsErrorHandler      = binance.ErrHandler
)

// BinanceWebSocketService is the slice of the Binance WebSocket API the
// stream depends on, so tests can stand in for the exchange.
type BinanceWebSocketService interface {
	WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (doneC chan struct{}, stopC chan struct{}, err error)
}

// binanceWebSocketWrapper adapts the package-level SDK function to
// BinanceWebSocketService.
type binanceWebSocketWrapper struct{}

func (w *binanceWebSocketWrapper) WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, handler, errHandler)
}

// NewBinanceClientWithWebSocket creates a client over the given API client
// and WebSocket service. The API client may be nil for stream-only use.
func NewBinanceClientWithWebSocket(apiClient BinanceAPIClient, ws BinanceWebSocketService) *BinanceClient {
	return &BinanceClient{
		apiClient: apiClient,
		ws:        ws,
		writer:    nil,
	}
}

// Stream yields finalized candles for the symbols over kline WebSocket
// connections, one per symbol. Mid-candle updates are skipped so every
// yielded bar is closed. Cancel the context to stop streaming.
func (c *BinanceClient) Stream(ctx context.Context, symbols []string, interval string) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		if len(symbols) == 0 {
			yield(types.MarketData{}, errors.New(errors.ErrCodeMarketDataFetchFailed, "no symbols provided"))

			return
		}

		if !isValidBinanceInterval(interval) {
			yield(types.MarketData{}, errors.Newf(errors.ErrCodeInvalidTimespan, "invalid interval for Binance streaming: %s", interval))

			return
		}

		events := make(chan *BinanceWsKlineEvent, streamEventBuffer)
		wsErrs := make(chan error, len(symbols))

		var stops []chan struct{}

		defer func() {
			for _, stopC := range stops {
				close(stopC)
			}
		}()

		for _, symbol := range symbols {
			_, stopC, err := c.ws.WsKlineServe(symbol, interval,
				func(event *BinanceWsKlineEvent) {
					// Drop rather than block the exchange callback when the consumer stalls.
					select {
					case events <- event:
					default:
					}
				},
				func(err error) {
					select {
					case wsErrs <- err:
					default:
					}
				})
			if err != nil {
				yield(types.MarketData{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to start websocket stream for %s", symbol))

				return
			}

			stops = append(stops, stopC)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				if !event.Kline.IsFinal {
					continue
				}

				if !yield(convertWsKlineToMarketData(event), nil) {
					return
				}
			case err := <-wsErrs:
				yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "websocket error", err))

				return
			}
		}
	}
}

// convertWsKlineToMarketData converts a kline event to a bar, stamped with
// the candle open time.
func convertWsKlineToMarketData(event *BinanceWsKlineEvent) types.MarketData {
	open, _ := strconv.ParseFloat(event.Kline.Open, 64)
	high, _ := strconv.ParseFloat(event.Kline.High, 64)
	low, _ := strconv.ParseFloat(event.Kline.Low, 64)
	closePrice, _ := strconv.ParseFloat(event.Kline.Close, 64)
	volume, _ := strconv.ParseFloat(event.Kline.Volume, 64)

	return types.MarketData{
		Id:     "",
		Symbol: event.Symbol,
		Time:   time.UnixMilli(event.Kline.StartTime),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}
}

var binanceStreamIntervals = map[string]struct{}{
	"1s": {}, "1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {}, "1M": {},
}

func isValidBinanceInterval(interval string) bool {
	_, ok := binanceStreamIntervals[interval]

	return ok
}
