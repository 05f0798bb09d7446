package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	polygonws "github.com/polygon-io/client-go/websocket"
	"github.com/polygon-io/client-go/websocket/models"
	"github.com/stretchr/testify/suite"

	"github.com/andgamespace/backtest/internal/types"
)

// mockPolygonWebSocketService implements PolygonWebSocketService for testing.
type mockPolygonWebSocketService struct {
	events       []any   // Events to emit (models.EquityAgg, control messages)
	errors       []error // Errors to emit
	connectError error   // Error on Connect() call
	outputChan   chan any
	errorChan    chan error
	closed       bool
}

func newMockPolygonWebSocketService() *mockPolygonWebSocketService {
	return &mockPolygonWebSocketService{
		outputChan: make(chan any, 100),
		errorChan:  make(chan error, 10),
	}
}

func (m *mockPolygonWebSocketService) Connect() error {
	if m.connectError != nil {
		return m.connectError
	}

	go func() {
		for _, event := range m.events {
			m.outputChan <- event
		}

		for _, err := range m.errors {
			m.errorChan <- err
		}
	}()

	return nil
}

func (m *mockPolygonWebSocketService) Subscribe(topic polygonws.Topic, tickers ...string) error {
	return nil
}

func (m *mockPolygonWebSocketService) Unsubscribe(topic polygonws.Topic, tickers ...string) error {
	return nil
}

func (m *mockPolygonWebSocketService) Output() <-chan any {
	return m.outputChan
}

func (m *mockPolygonWebSocketService) Error() <-chan error {
	return m.errorChan
}

func (m *mockPolygonWebSocketService) Close() {
	if !m.closed {
		m.closed = true
		close(m.outputChan)
		close(m.errorChan)
	}
}

func minuteAggEvent(symbol string, startTimestamp int64, open, high, low, close, volume float64) models.EquityAgg {
	return models.EquityAgg{
		EventType: models.EventType{
			EventType: "AM",
		},
		Symbol:         symbol,
		Open:           open,
		High:           high,
		Low:            low,
		Close:          close,
		Volume:         volume,
		StartTimestamp: startTimestamp,
	}
}

type PolygonStreamTestSuite struct {
	suite.Suite
}

func TestPolygonStreamSuite(t *testing.T) {
	suite.Run(t, new(PolygonStreamTestSuite))
}

func (suite *PolygonStreamTestSuite) TestStreamSingleSymbol() {
	events := []any{
		minuteAggEvent("AAPL", 1704067200000, 150.00, 152.00, 149.50, 151.50, 1000000),
		minuteAggEvent("AAPL", 1704067260000, 151.50, 153.00, 151.00, 152.75, 800000),
	}

	mockWs := newMockPolygonWebSocketService()
	mockWs.events = events

	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var received []types.MarketData

	for data, err := range client.Stream(ctx, []string{"AAPL"}, "1m") {
		if err != nil {
			break
		}

		received = append(received, data)
	}

	suite.Require().Len(received, 2)
	suite.Equal("AAPL", received[0].Symbol)
	suite.Equal(time.UnixMilli(1704067200000), received[0].Time)
	suite.InDelta(150.00, received[0].Open, 0.01)
	suite.InDelta(151.50, received[0].Close, 0.01)
	suite.InDelta(152.75, received[1].Close, 0.01)
}

func (suite *PolygonStreamTestSuite) TestStreamMultipleSymbols() {
	events := []any{
		minuteAggEvent("AAPL", 1704067200000, 150.00, 152.00, 149.50, 151.50, 1000000),
		minuteAggEvent("GOOGL", 1704067200000, 140.00, 142.00, 139.50, 141.50, 500000),
	}

	mockWs := newMockPolygonWebSocketService()
	mockWs.events = events

	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	symbolsSeen := make(map[string]bool)

	for data, err := range client.Stream(ctx, []string{"AAPL", "GOOGL"}, "1m") {
		if err != nil {
			break
		}

		symbolsSeen[data.Symbol] = true
	}

	suite.True(symbolsSeen["AAPL"])
	suite.True(symbolsSeen["GOOGL"])
}

func (suite *PolygonStreamTestSuite) TestStreamSkipsNonAggregateMessages() {
	events := []any{
		"status: connected", // Control messages share the output channel
		struct{ Status string }{Status: "auth_success"},
		minuteAggEvent("AAPL", 1704067200000, 150.00, 152.00, 149.50, 151.50, 1000000),
	}

	mockWs := newMockPolygonWebSocketService()
	mockWs.events = events

	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var received []types.MarketData

	for data, err := range client.Stream(ctx, []string{"AAPL"}, "1m") {
		if err != nil {
			break
		}

		received = append(received, data)
	}

	// Only the aggregate event becomes a candle
	suite.Require().Len(received, 1)
	suite.InDelta(151.50, received[0].Close, 0.01)
}

func (suite *PolygonStreamTestSuite) TestStreamConnectionError() {
	mockWs := newMockPolygonWebSocketService()
	mockWs.connectError = errors.New("authentication failed")

	client := NewPolygonClientWithWebSocket("invalid-api-key", mockWs)

	var gotError bool

	var errorMsg string

	for _, err := range client.Stream(context.Background(), []string{"AAPL"}, "1m") {
		if err != nil {
			gotError = true
			errorMsg = err.Error()

			break
		}
	}

	suite.True(gotError)
	suite.Contains(errorMsg, "failed to connect")
	suite.Contains(errorMsg, "authentication failed")
}

func (suite *PolygonStreamTestSuite) TestStreamEmptySymbols() {
	mockWs := newMockPolygonWebSocketService()
	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	var gotError bool

	var errorMsg string

	for _, err := range client.Stream(context.Background(), []string{}, "1m") {
		if err != nil {
			gotError = true
			errorMsg = err.Error()

			break
		}
	}

	suite.True(gotError)
	suite.Contains(errorMsg, "no symbols provided")
}

func (suite *PolygonStreamTestSuite) TestStreamContextCancellation() {
	mockWs := newMockPolygonWebSocketService()
	// No events, the context cancellation ends the stream

	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	iterCount := 0

	for range client.Stream(ctx, []string{"AAPL"}, "1m") {
		iterCount++
		if iterCount > 10 {
			break
		}
	}

	suite.LessOrEqual(iterCount, 10)
}

func (suite *PolygonStreamTestSuite) TestStreamWebSocketError() {
	mockWs := newMockPolygonWebSocketService()
	mockWs.errors = []error{errors.New("websocket disconnected")}

	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var gotError bool

	var errorMsg string

	for _, err := range client.Stream(ctx, []string{"AAPL"}, "1m") {
		if err != nil {
			gotError = true
			errorMsg = err.Error()

			break
		}
	}

	suite.True(gotError)
	suite.Contains(errorMsg, "websocket error")
	suite.Contains(errorMsg, "websocket disconnected")
}

func (suite *PolygonStreamTestSuite) TestConvertEquityAggToMarketData() {
	agg := &models.EquityAgg{
		Symbol:         "MSFT",
		Open:           380.50,
		High:           385.00,
		Low:            378.00,
		Close:          383.75,
		Volume:         500000,
		StartTimestamp: 1704067200000,
	}

	data := convertEquityAggToMarketData(agg)

	suite.Equal("MSFT", data.Symbol)
	suite.Equal(time.UnixMilli(1704067200000), data.Time)
	suite.InDelta(380.50, data.Open, 0.01)
	suite.InDelta(385.00, data.High, 0.01)
	suite.InDelta(378.00, data.Low, 0.01)
	suite.InDelta(383.75, data.Close, 0.01)
	suite.InDelta(500000, data.Volume, 0.01)
}

func (suite *PolygonStreamTestSuite) TestConvertIntervalToPolygonTopic() {
	topic, err := convertIntervalToPolygonTopic("1s")
	suite.NoError(err)
	suite.Equal(polygonws.StocksSecAggs, topic)

	topic, err = convertIntervalToPolygonTopic("1m")
	suite.NoError(err)
	suite.Equal(polygonws.StocksMinAggs, topic)

	// Coarser intervals consume minute aggregates
	topic, err = convertIntervalToPolygonTopic("5m")
	suite.NoError(err)
	suite.Equal(polygonws.StocksMinAggs, topic)

	topic, err = convertIntervalToPolygonTopic("1h")
	suite.NoError(err)
	suite.Equal(polygonws.StocksMinAggs, topic)

	_, err = convertIntervalToPolygonTopic("")
	suite.Error(err)
	suite.Contains(err.Error(), "interval is required")
}

func (suite *PolygonStreamTestSuite) TestSetOnStatusChange() {
	client := NewPolygonClientWithWebSocket("test-api-key", nil)

	client.SetOnStatusChange(func(_ types.ProviderConnectionStatus) {})

	suite.NotNil(client.onStatusChange)
}

func (suite *PolygonStreamTestSuite) TestStreamEmitsConnectedStatus() {
	events := []any{
		minuteAggEvent("AAPL", 1704067200000, 150.00, 152.00, 149.50, 151.50, 1000000),
	}

	mockWs := newMockPolygonWebSocketService()
	mockWs.events = events

	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	var statusChanges []types.ProviderConnectionStatus

	client.SetOnStatusChange(func(status types.ProviderConnectionStatus) {
		statusChanges = append(statusChanges, status)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	for range client.Stream(ctx, []string{"AAPL"}, "1m") {
	}

	suite.GreaterOrEqual(len(statusChanges), 1, "should have received at least one status change")
	suite.Contains(statusChanges, types.ProviderStatusConnected, "should have received connected status")
}

func (suite *PolygonStreamTestSuite) TestStreamEmitsDisconnectedAfterStop() {
	mockWs := newMockPolygonWebSocketService()

	client := NewPolygonClientWithWebSocket("test-api-key", mockWs)

	var statusChanges []types.ProviderConnectionStatus

	client.SetOnStatusChange(func(status types.ProviderConnectionStatus) {
		statusChanges = append(statusChanges, status)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for range client.Stream(ctx, []string{"AAPL"}, "1m") {
	}

	suite.Contains(statusChanges, types.ProviderStatusConnected)
	suite.Contains(statusChanges, types.ProviderStatusDisconnected, "should have received disconnected status after the stream ends")
}

func (suite *PolygonStreamTestSuite) TestStreamEmitsDisconnectedOnError() {
	mockWs := newMockPolygonWebSocketService()
	mockWs.connectError = errors.New("authentication failed")

	client := NewPolygonClientWithWebSocket("invalid-api-key", mockWs)

	var statusChanges []types.ProviderConnectionStatus

	client.SetOnStatusChange(func(status types.ProviderConnectionStatus) {
		statusChanges = append(statusChanges, status)
	})

	for range client.Stream(context.Background(), []string{"AAPL"}, "1m") {
	}

	suite.Contains(statusChanges, types.ProviderStatusDisconnected, "should have received disconnected status on connection error")
}
