package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/stretchr/testify/suite"

	"github.com/andgamespace/backtest/e2e/marketdata/mockserver"
	"github.com/andgamespace/backtest/internal/logger"
	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/mocks"
	"github.com/andgamespace/backtest/pkg/errors"
	"github.com/andgamespace/backtest/pkg/marketdata/provider"
	"github.com/andgamespace/backtest/pkg/marketdata/writer"
)

// DownloadE2ETestSuite drives the Binance download path end to end against
// a mock exchange server: REST paging, Parquet export, and abort handling.
type DownloadE2ETestSuite struct {
	suite.Suite
	server *mockserver.MockBinanceServer
	bars   []types.MarketData
}

func TestDownloadE2ETestSuite(t *testing.T) {
	suite.Run(t, new(DownloadE2ETestSuite))
}

func (s *DownloadE2ETestSuite) SetupTest() {
	generator := mocks.NewDataGenerator(7)
	config := mocks.DefaultConfig()
	config.Symbol = "BTCUSDT"
	config.StartTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	config.Count = 1200
	config.InitialPrice = 40000
	config.BaseVolume = 500
	s.bars = generator.Generate(config)

	s.server = mockserver.NewMockBinanceServer(mockserver.ServerConfig{
		Klines: map[string][]types.MarketData{"BTCUSDT": s.bars},
	})
	s.Require().NoError(s.server.Start(""))
}

func (s *DownloadE2ETestSuite) TearDownTest() {
	s.Require().NoError(s.server.Stop())
}

// newDownloadClient builds a provider pointed at the mock server with a
// writer exporting to a file under the test's temp dir.
func (s *DownloadE2ETestSuite) newDownloadClient() (*provider.BinanceClient, string) {
	log, err := logger.NewLogger()
	s.Require().NoError(err)

	outputPath := filepath.Join(s.T().TempDir(), "BTCUSDT_1m.parquet")
	client := provider.NewBinanceClientWithBaseURL(s.server.BaseURL())
	client.ConfigWriter(writer.NewDuckDBWriter(outputPath, log))

	return client, outputPath
}

func (s *DownloadE2ETestSuite) readParquetSummary(path string) (count int, minTime time.Time, maxTime time.Time) {
	db, err := sql.Open("duckdb", ":memory:")
	s.Require().NoError(err)
	defer db.Close()

	query := fmt.Sprintf("SELECT COUNT(*), MIN(time), MAX(time) FROM read_parquet('%s')", path)
	s.Require().NoError(db.QueryRow(query).Scan(&count, &minTime, &maxTime))

	return count, minTime, maxTime
}

func (s *DownloadE2ETestSuite) countParquetRows(path string) int {
	db, err := sql.Open("duckdb", ":memory:")
	s.Require().NoError(err)
	defer db.Close()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM read_parquet('%s')", path)
	s.Require().NoError(db.QueryRow(query).Scan(&count))

	return count
}

func (s *DownloadE2ETestSuite) readFirstBar(path string) (symbol string, barTime time.Time, closePrice float64) {
	db, err := sql.Open("duckdb", ":memory:")
	s.Require().NoError(err)
	defer db.Close()

	query := fmt.Sprintf("SELECT symbol, time, close FROM read_parquet('%s') ORDER BY time ASC LIMIT 1", path)
	s.Require().NoError(db.QueryRow(query).Scan(&symbol, &barTime, &closePrice))

	return symbol, barTime, closePrice
}

func (s *DownloadE2ETestSuite) TestDownloadPagesThroughHistory() {
	client, outputPath := s.newDownloadClient()

	var progressCalls int
	var lastCurrent, lastTotal float64
	onProgress := func(current float64, total float64, _ string) {
		progressCalls++
		lastCurrent, lastTotal = current, total
	}

	start := s.bars[0].Time
	end := s.bars[len(s.bars)-1].Time
	path, err := client.Download(context.Background(), "BTCUSDT", start, end, 1, models.Minute, onProgress)
	s.Require().NoError(err)
	s.Equal(outputPath, path)

	// 1200 bars against a 500-row page cap is exactly three requests.
	s.Equal(3, s.server.KlineRequestCount())
	// One progress report per page plus the completion report.
	s.Equal(4, progressCalls)
	s.Equal(lastTotal, lastCurrent)

	count, minTime, maxTime := s.readParquetSummary(path)
	s.Equal(len(s.bars), count)
	s.True(minTime.Equal(s.bars[0].Time))
	s.True(maxTime.Equal(s.bars[len(s.bars)-1].Time))

	symbol, barTime, closePrice := s.readFirstBar(path)
	s.Equal("BTCUSDT", symbol)
	s.True(barTime.Equal(s.bars[0].Time))
	s.InDelta(s.bars[0].Close, closePrice, 1e-6)
}

func (s *DownloadE2ETestSuite) TestDownloadHonorsRequestedRange() {
	client, _ := s.newDownloadClient()

	start := s.bars[100].Time
	end := s.bars[399].Time
	path, err := client.Download(context.Background(), "BTCUSDT", start, end, 1, models.Minute, nil)
	s.Require().NoError(err)

	// 300 bars fit in a single page.
	s.Equal(1, s.server.KlineRequestCount())

	count, minTime, maxTime := s.readParquetSummary(path)
	s.Equal(300, count)
	s.True(minTime.Equal(s.bars[100].Time))
	s.True(maxTime.Equal(s.bars[399].Time))
}

func (s *DownloadE2ETestSuite) TestDownloadCancelledBeforeFirstPage() {
	client, outputPath := s.newDownloadClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Download(ctx, "BTCUSDT", s.bars[0].Time, s.bars[len(s.bars)-1].Time, 1, models.Minute, nil)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
	s.Contains(err.Error(), "download cancelled")
	s.Equal(0, s.server.KlineRequestCount())

	// The abort still flushes the writer, so an empty file is left behind.
	s.Equal(0, s.countParquetRows(outputPath))
}

func (s *DownloadE2ETestSuite) TestDownloadRejectsUnsupportedResolution() {
	client, _ := s.newDownloadClient()

	_, err := client.Download(context.Background(), "BTCUSDT", s.bars[0].Time, s.bars[len(s.bars)-1].Time, 5, models.Second, nil)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidTimespan))
	s.Equal(0, s.server.KlineRequestCount())
}
