package provider

import (
	"context"
	"iter"
	"time"

	polygonws "github.com/polygon-io/client-go/websocket"
	wsmodels "github.com/polygon-io/client-go/websocket/models"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
)

// PolygonWebSocketService is the slice of the Polygon WebSocket API the
// stream depends on, so tests can stand in for the vendor.
type PolygonWebSocketService interface {
	Connect() error
	Subscribe(topic polygonws.Topic, tickers ...string) error
	Unsubscribe(topic polygonws.Topic, tickers ...string) error
	Output() <-chan any
	Error() <-chan error
	Close()
}

// polygonWebSocketWrapper adapts *polygonws.Client to
// PolygonWebSocketService.
type polygonWebSocketWrapper struct {
	client *polygonws.Client
}

func (w *polygonWebSocketWrapper) Connect() error { return w.client.Connect() }

func (w *polygonWebSocketWrapper) Subscribe(topic polygonws.Topic, tickers ...string) error {
	return w.client.Subscribe(topic, tickers...)
}

func (w *polygonWebSocketWrapper) Unsubscribe(topic polygonws.Topic, tickers ...string) error {
	return w.client.Unsubscribe(topic, tickers...)
}

func (w *polygonWebSocketWrapper) Output() <-chan any { return w.client.Output() }

func (w *polygonWebSocketWrapper) Error() <-chan error { return w.client.Error() }

func (w *polygonWebSocketWrapper) Close() { w.client.Close() }

// NewPolygonClientWithWebSocket creates a client over the given WebSocket
// service. A nil service makes Stream dial the real feed with the API key.
func NewPolygonClientWithWebSocket(apiKey string, ws PolygonWebSocketService) *PolygonClient {
	return &PolygonClient{
		apiClient:      nil,
		ws:             ws,
		apiKey:         apiKey,
		writer:         nil,
		onStatusChange: nil,
	}
}

// SetOnStatusChange registers a callback invoked when the stream connection
// comes up or goes down.
func (c *PolygonClient) SetOnStatusChange(callback func(types.ProviderConnectionStatus)) {
	c.onStatusChange = callback
}

func (c *PolygonClient) emitStatus(status types.ProviderConnectionStatus) {
	if c.onStatusChange != nil {
		c.onStatusChange(status)
	}
}

// Stream yields aggregate candles for the symbols over the Polygon
// WebSocket feed. Cancel the context to stop streaming.
func (c *PolygonClient) Stream(ctx context.Context, symbols []string, interval string) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		if len(symbols) == 0 {
			yield(types.MarketData{}, errors.New(errors.ErrCodeMarketDataFetchFailed, "no symbols provided"))

			return
		}

		topic, err := convertIntervalToPolygonTopic(interval)
		if err != nil {
			yield(types.MarketData{}, err)

			return
		}

		ws := c.ws
		if ws == nil {
			client, err := polygonws.New(polygonws.Config{
				APIKey: c.apiKey,
				Feed:   polygonws.RealTime,
				Market: polygonws.Stocks,
			})
			if err != nil {
				yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to create websocket client", err))

				return
			}

			ws = &polygonWebSocketWrapper{client: client}
		}

		if err := ws.Connect(); err != nil {
			c.emitStatus(types.ProviderStatusDisconnected)
			yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to connect to Polygon websocket", err))

			return
		}

		defer func() {
			ws.Close()
			c.emitStatus(types.ProviderStatusDisconnected)
		}()

		if err := ws.Subscribe(topic, symbols...); err != nil {
			yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to subscribe", err))

			return
		}

		defer func() {
			_ = ws.Unsubscribe(topic, symbols...)
		}()

		c.emitStatus(types.ProviderStatusConnected)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ws.Output():
				if !ok {
					return
				}

				// Control and status messages share the output channel.
				agg, isAgg := event.(wsmodels.EquityAgg)
				if !isAgg {
					continue
				}

				if !yield(convertEquityAggToMarketData(&agg), nil) {
					return
				}
			case err, ok := <-ws.Error():
				if !ok {
					return
				}

				yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "websocket error", err))

				return
			}
		}
	}
}

// convertEquityAggToMarketData converts an aggregate event to a bar,
// stamped with the window start time.
func convertEquityAggToMarketData(agg *wsmodels.EquityAgg) types.MarketData {
	return types.MarketData{
		Id:     "",
		Symbol: agg.Symbol,
		Time:   time.UnixMilli(agg.StartTimestamp),
		Open:   agg.Open,
		High:   agg.High,
		Low:    agg.Low,
		Close:  agg.Close,
		Volume: agg.Volume,
	}
}

// convertIntervalToPolygonTopic picks the aggregates topic for an interval.
// Polygon streams at second or minute granularity, so coarser intervals
// consume minute aggregates.
func convertIntervalToPolygonTopic(interval string) (polygonws.Topic, error) {
	var zero polygonws.Topic

	switch interval {
	case "":
		return zero, errors.New(errors.ErrCodeInvalidTimespan, "interval is required")
	case "1s":
		return polygonws.StocksSecAggs, nil
	default:
		return polygonws.StocksMinAggs, nil
	}
}
