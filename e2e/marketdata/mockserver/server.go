// Package mockserver provides a mock Binance market data server for
// testing. It serves historical klines over REST and streams candles over
// WebSocket, backed by a fixed bar series supplied by the test.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/andgamespace/backtest/internal/types"
)

// klinePageLimit is the row cap Binance applies to a single klines request.
const klinePageLimit = 500

// MockBinanceServer serves a fixed set of bars the way Binance would:
// paged kline history over REST and kline events over WebSocket.
type MockBinanceServer struct {
	mu sync.RWMutex

	// HTTP server
	httpServer *http.Server
	listener   net.Listener

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Market data
	klines        map[string][]types.MarketData
	klineRequests int

	// WebSocket connections
	wsConnections map[*websocket.Conn]bool
	wsMu          sync.RWMutex

	// Streaming configuration
	streamInterval time.Duration
	stopStreaming  chan struct{}
	stopOnce       sync.Once
}

// ServerConfig holds configuration for the mock server.
type ServerConfig struct {
	// Klines maps symbol to the bars the server serves, ordered by time.
	Klines map[string][]types.MarketData
	// StreamInterval is the delay between streamed kline frames.
	StreamInterval time.Duration
}

// NewMockBinanceServer creates a new mock Binance server over the given
// bar series.
func NewMockBinanceServer(config ServerConfig) *MockBinanceServer {
	streamInterval := config.StreamInterval
	if streamInterval == 0 {
		streamInterval = 5 * time.Millisecond
	}

	klines := config.Klines
	if klines == nil {
		klines = make(map[string][]types.MarketData)
	}

	return &MockBinanceServer{
		mu: sync.RWMutex{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		klines:         klines,
		klineRequests:  0,
		wsConnections:  make(map[*websocket.Conn]bool),
		wsMu:           sync.RWMutex{},
		streamInterval: streamInterval,
		stopStreaming:  make(chan struct{}),
		stopOnce:       sync.Once{},
		httpServer:     nil,
		listener:       nil,
	}
}

// Start starts the mock server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *MockBinanceServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	router := mux.NewRouter()

	// REST API endpoints
	router.HandleFunc("/api/v3/klines", s.handleKlines).Methods("GET")

	// WebSocket endpoint
	router.HandleFunc("/ws/{symbol}@kline_{interval}", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the mock server. Repeated calls are no-ops, so tests that
// kill the server mid-stream can still run their teardown.
func (s *MockBinanceServer) Stop() error {
	stopped := false
	s.stopOnce.Do(func() {
		stopped = true
		close(s.stopStreaming)
	})
	if !stopped {
		return nil
	}

	// Close all WebSocket connections
	s.wsMu.Lock()
	for conn := range s.wsConnections {
		conn.Close()
	}
	s.wsConnections = make(map[*websocket.Conn]bool)
	s.wsMu.Unlock()

	// Shutdown HTTP server
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Address returns the address the server is listening on.
func (s *MockBinanceServer) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the base URL for the server.
func (s *MockBinanceServer) BaseURL() string {
	return "http://" + s.Address()
}

// WebSocketURL returns the WebSocket URL for the server.
func (s *MockBinanceServer) WebSocketURL() string {
	return "ws://" + s.Address()
}

// KlineRequestCount returns how many kline history requests the server has
// served, so tests can assert on paging behavior.
func (s *MockBinanceServer) KlineRequestCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.klineRequests
}

// handleKlines handles GET /api/v3/klines. It filters the symbol's bars by
// open time and caps the response at klinePageLimit rows, the same paging
// contract the real endpoint applies.
func (s *MockBinanceServer) handleKlines(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	interval := r.URL.Query().Get("interval")
	startTimeStr := r.URL.Query().Get("startTime")
	endTimeStr := r.URL.Query().Get("endTime")

	if symbol == "" || interval == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}

	intervalDuration := parseInterval(interval)
	if intervalDuration == 0 {
		http.Error(w, "Invalid interval", http.StatusBadRequest)
		return
	}

	// Both bounds are inclusive of a bar's open time, like the real API.
	var startMillis int64
	endMillis := int64(math.MaxInt64)
	if startTimeStr != "" {
		startMillis, _ = strconv.ParseInt(startTimeStr, 10, 64)
	}
	if endTimeStr != "" {
		endMillis, _ = strconv.ParseInt(endTimeStr, 10, 64)
	}

	s.mu.Lock()
	s.klineRequests++
	bars := s.klines[symbol]
	s.mu.Unlock()

	klines := make([][]interface{}, 0)
	for _, bar := range bars {
		openTime := bar.Time.UnixMilli()
		if openTime < startMillis || openTime > endMillis {
			continue
		}

		closeTime := bar.Time.Add(intervalDuration).UnixMilli() - 1
		klines = append(klines, []interface{}{
			bar.Time.UnixMilli(),                        // Open time
			strconv.FormatFloat(bar.Open, 'f', 8, 64),   // Open
			strconv.FormatFloat(bar.High, 'f', 8, 64),   // High
			strconv.FormatFloat(bar.Low, 'f', 8, 64),    // Low
			strconv.FormatFloat(bar.Close, 'f', 8, 64),  // Close
			strconv.FormatFloat(bar.Volume, 'f', 8, 64), // Volume
			closeTime, // Close time
			"0",       // Quote asset volume
			0,         // Number of trades
			"0",       // Taker buy base asset volume
			"0",       // Taker buy quote asset volume
			"0",       // Ignore
		})

		if len(klines) == klinePageLimit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(klines)
}

// handleWebSocket handles WebSocket connections for kline streaming.
func (s *MockBinanceServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := strings.ToUpper(vars["symbol"])
	interval := vars["interval"]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.wsMu.Lock()
	s.wsConnections[conn] = true
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsConnections, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	// Start streaming klines
	s.streamKlines(conn, symbol, interval)
}

// streamKlines replays the symbol's bars to a WebSocket connection. Each
// bar is sent twice, an in-progress frame first and the closed candle
// second, so clients that only want finalized bars must drop the first.
func (s *MockBinanceServer) streamKlines(conn *websocket.Conn, symbol, interval string) {
	intervalDuration := parseInterval(interval)
	if intervalDuration == 0 {
		intervalDuration = time.Minute
	}

	s.mu.RLock()
	bars := s.klines[symbol]
	s.mu.RUnlock()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for _, bar := range bars {
		for _, isFinal := range []bool{false, true} {
			select {
			case <-s.stopStreaming:
				return
			case <-ticker.C:
			}

			// The in-progress frame carries the candle as it looks right
			// after opening.
			open := strconv.FormatFloat(bar.Open, 'f', 8, 64)
			closePrice := open
			high := open
			low := open
			volume := "0.00000000"
			if isFinal {
				closePrice = strconv.FormatFloat(bar.Close, 'f', 8, 64)
				high = strconv.FormatFloat(bar.High, 'f', 8, 64)
				low = strconv.FormatFloat(bar.Low, 'f', 8, 64)
				volume = strconv.FormatFloat(bar.Volume, 'f', 8, 64)
			}

			event := map[string]interface{}{
				"e": "kline",
				"E": time.Now().UnixMilli(),
				"s": symbol,
				"k": map[string]interface{}{
					"t": bar.Time.UnixMilli(),
					"T": bar.Time.Add(intervalDuration).UnixMilli() - 1,
					"s": symbol,
					"i": interval,
					"o": open,
					"c": closePrice,
					"h": high,
					"l": low,
					"v": volume,
					"x": isFinal,
				},
			}

			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// parseInterval parses a Binance interval string to a duration.
func parseInterval(interval string) time.Duration {
	if len(interval) < 2 {
		return 0
	}

	numStr := interval[:len(interval)-1]
	unit := interval[len(interval)-1:]

	num, err := strconv.Atoi(numStr)
	if err != nil {
		return 0
	}

	switch unit {
	case "s":
		return time.Duration(num) * time.Second
	case "m":
		return time.Duration(num) * time.Minute
	case "h":
		return time.Duration(num) * time.Hour
	case "d":
		return time.Duration(num) * 24 * time.Hour
	case "w":
		return time.Duration(num) * 7 * 24 * time.Hour
	case "M":
		return time.Duration(num) * 30 * 24 * time.Hour
	default:
		return 0
	}
}
