package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	"github.com/andgamespace/backtest/pkg/marketdata/writer"
)

// binanceKlinesPageSize is the row cap the klines endpoint applies per
// request. A full page means more data may follow.
const binanceKlinesPageSize = 500

// BinanceAPIClient is the slice of the Binance REST API the provider
// depends on, so tests can stand in for the exchange.
type BinanceAPIClient interface {
	NewKlinesService() BinanceKlinesService
}

// BinanceKlinesService mirrors the fluent kline query builder.
type BinanceKlinesService interface {
	Symbol(symbol string) BinanceKlinesService
	Interval(interval string) BinanceKlinesService
	StartTime(startTime int64) BinanceKlinesService
	EndTime(endTime int64) BinanceKlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// binanceClientWrapper adapts *binance.Client to BinanceAPIClient.
type binanceClientWrapper struct {
	client *binance.Client
}

func (w *binanceClientWrapper) NewKlinesService() BinanceKlinesService {
	return &binanceKlinesServiceWrapper{service: w.client.NewKlinesService()}
}

type binanceKlinesServiceWrapper struct {
	service *binance.KlinesService
}

func (w *binanceKlinesServiceWrapper) Symbol(symbol string) BinanceKlinesService {
	w.service.Symbol(symbol)

	return w
}

func (w *binanceKlinesServiceWrapper) Interval(interval string) BinanceKlinesService {
	w.service.Interval(interval)

	return w
}

func (w *binanceKlinesServiceWrapper) StartTime(startTime int64) BinanceKlinesService {
	w.service.StartTime(startTime)

	return w
}

func (w *binanceKlinesServiceWrapper) EndTime(endTime int64) BinanceKlinesService {
	w.service.EndTime(endTime)

	return w
}

func (w *binanceKlinesServiceWrapper) Do(ctx context.Context) ([]*binance.Kline, error) {
	return w.service.Do(ctx)
}

// BinanceClient downloads historical klines and streams live candles from
// Binance. Public market data needs no credentials.
type BinanceClient struct {
	apiClient BinanceAPIClient
	ws        BinanceWebSocketService
	writer    writer.MarketDataWriter
}

// NewBinanceClient creates a provider backed by the public Binance API.
func NewBinanceClient() (Provider, error) {
	return &BinanceClient{
		apiClient: &binanceClientWrapper{client: binance.NewClient("", "")},
		ws:        &binanceWebSocketWrapper{},
		writer:    nil,
	}, nil
}

// NewBinanceClientWithAPI creates a client over the given API client.
func NewBinanceClientWithAPI(apiClient BinanceAPIClient) *BinanceClient {
	return &BinanceClient{
		apiClient: apiClient,
		ws:        &binanceWebSocketWrapper{},
		writer:    nil,
	}
}

// NewBinanceClientWithBaseURL creates a client whose REST calls target the
// given base URL instead of the public endpoint.
func NewBinanceClientWithBaseURL(baseURL string) *BinanceClient {
	restClient := binance.NewClient("", "")
	restClient.BaseURL = baseURL

	return &BinanceClient{
		apiClient: &binanceClientWrapper{client: restClient},
		ws:        &binanceWebSocketWrapper{},
		writer:    nil,
	}
}

func (c *BinanceClient) ConfigWriter(w writer.MarketDataWriter) {
	c.writer = w
}

// Download pages through historical klines for the ticker and writes each
// bar through the configured writer.
func (c *BinanceClient) Download(ctx context.Context, ticker string, startDate time.Time, endDate time.Time, multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (path string, err error) {
	interval, err := convertTimespanToBinanceInterval(timespan, multiplier)
	if err != nil {
		return "", err
	}

	if c.writer == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer is not configured")
	}

	if err := c.writer.Initialize(); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to initialize writer", err)
	}

	startMillis := startDate.UnixMilli()
	endMillis := endDate.UnixMilli()
	currentStart := startMillis

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", c.abortDownload(errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "download cancelled", ctxErr))
		}

		klines, err := c.apiClient.NewKlinesService().
			Symbol(ticker).
			Interval(interval).
			StartTime(currentStart).
			EndTime(endMillis).
			Do(ctx)
		if err != nil {
			return "", c.abortDownload(errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to fetch klines from Binance", err))
		}

		if onProgress != nil {
			// Progress is relative to the requested range, not an absolute timestamp.
			onProgress(float64(currentStart-startMillis), float64(endMillis-startMillis),
				fmt.Sprintf("Downloading %s klines from Binance", ticker))
		}

		if err := processKlines(c.writer, ticker, klines); err != nil {
			return "", c.abortDownload(err)
		}

		// A short page is the last page.
		if len(klines) < binanceKlinesPageSize {
			break
		}

		// Resume one millisecond past the last candle so it is not refetched.
		currentStart = klines[len(klines)-1].CloseTime + 1
		if currentStart >= endMillis {
			break
		}
	}

	if onProgress != nil {
		onProgress(float64(endMillis-startMillis), float64(endMillis-startMillis),
			fmt.Sprintf("Downloaded %s klines from Binance", ticker))
	}

	outputPath, err := c.writer.Finalize()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to finalize writer", err)
	}

	return outputPath, nil
}

// abortDownload finalizes the writer after a failure so bars fetched before
// the error are still flushed. The original error stays primary.
func (c *BinanceClient) abortDownload(cause error) error {
	if _, finalizeErr := c.writer.Finalize(); finalizeErr != nil {
		return errors.Wrapf(errors.GetCode(cause), cause, "also failed to finalize writer: %v", finalizeErr)
	}

	return cause
}

// processKlines converts one page of Binance klines to bars and writes
// them. Unparseable number strings become zero, matching ParseFloat.
func processKlines(w writer.MarketDataWriter, ticker string, klines []*binance.Kline) error {
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		bar := types.MarketData{
			Id:     "",
			Symbol: ticker,
			Time:   time.UnixMilli(k.OpenTime),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		}

		if err := w.Write(bar); err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write market data", err)
		}
	}

	return nil
}

// convertTimespanToBinanceInterval maps a multiplier x timespan pair onto a
// Binance kline interval string.
// Ref: https://binance-docs.github.io/apidocs/spot/en/#kline-candlestick-data
func convertTimespanToBinanceInterval(timespan models.Timespan, multiplier int) (string, error) {
	switch timespan {
	case models.Second:
		if multiplier == 1 {
			return "1s", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported second multiplier for Binance: %d", multiplier)
	case models.Minute:
		return fmt.Sprintf("%dm", multiplier), nil
	case models.Hour:
		return fmt.Sprintf("%dh", multiplier), nil
	case models.Day:
		return fmt.Sprintf("%dd", multiplier), nil
	case models.Week:
		if multiplier == 1 {
			return "1w", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported weekly multiplier for Binance: %d", multiplier)
	case models.Month:
		if multiplier == 1 {
			return "1M", nil
		}

		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported monthly multiplier for Binance: %d", multiplier)
	default:
		return "", errors.Newf(errors.ErrCodeInvalidTimespan, "unsupported timespan for Binance: %s", timespan)
	}
}
