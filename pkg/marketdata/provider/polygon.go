package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/schollz/progressbar/v3"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/pkg/errors"
	"github.com/andgamespace/backtest/pkg/marketdata/writer"
)

// polygonAggsPageLimit is the per-request row cap on the aggregates API.
const polygonAggsPageLimit = 50000

// PolygonAPIClient is the slice of the Polygon REST API the provider
// depends on, so tests can stand in for the vendor.
type PolygonAPIClient interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator
}

// PolygonAggsIterator walks a paginated aggregates response.
type PolygonAggsIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// polygonClientWrapper adapts *polygon.Client to PolygonAPIClient.
type polygonClientWrapper struct {
	client *polygon.Client
}

func (w *polygonClientWrapper) ListAggs(ctx context.Context, params *models.ListAggsParams, options ...models.RequestOption) PolygonAggsIterator {
	return w.client.ListAggs(ctx, params, options...)
}

// PolygonClient downloads historical aggregates and streams live candles
// from Polygon.io. All requests need an API key.
type PolygonClient struct {
	apiClient      PolygonAPIClient
	ws             PolygonWebSocketService
	apiKey         string
	writer         writer.MarketDataWriter
	onStatusChange func(types.ProviderConnectionStatus)
}

// NewPolygonClient creates a provider backed by the Polygon REST API.
func NewPolygonClient(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidProvider, "apiKey is required")
	}

	return &PolygonClient{
		apiClient:      &polygonClientWrapper{client: polygon.New(apiKey)},
		ws:             nil,
		apiKey:         apiKey,
		writer:         nil,
		onStatusChange: nil,
	}, nil
}

// NewPolygonClientWithAPI creates a client over the given API client.
func NewPolygonClientWithAPI(apiClient PolygonAPIClient) *PolygonClient {
	return &PolygonClient{
		apiClient:      apiClient,
		ws:             nil,
		apiKey:         "",
		writer:         nil,
		onStatusChange: nil,
	}
}

func (c *PolygonClient) ConfigWriter(w writer.MarketDataWriter) {
	c.writer = w
}

// Download fetches aggregates for the ticker and writes each bar through
// the configured writer. Progress is reported in days of the range.
func (c *PolygonClient) Download(ctx context.Context, ticker string, startDate time.Time, endDate time.Time, multiplier int, timespan models.Timespan, onProgress OnDownloadProgress) (path string, err error) {
	if c.writer == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "no writer configured for PolygonClient, call ConfigWriter first")
	}

	if err = c.writer.Initialize(); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to initialize writer", err)
	}

	rowsWritten := 0

	defer func() {
		if cerr := c.writer.Close(); cerr != nil && err == nil {
			err = errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "error closing writer", cerr)
		}

		// A failed download that wrote nothing leaves no empty file behind.
		if err != nil && rowsWritten == 0 {
			os.Remove(c.writer.GetOutputPath())
		}
	}()

	totalDays := int(endDate.Sub(startDate).Hours()/24) + 1

	bar := progressbar.NewOptions(totalDays,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", ticker)),
		progressbar.OptionShowCount())

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(startDate),
		To:         models.Millis(endDate),
	}.WithLimit(polygonAggsPageLimit)

	aggs := c.apiClient.ListAggs(ctx, params)

	if onProgress != nil {
		onProgress(0, float64(totalDays), fmt.Sprintf("Downloading %s from Polygon", ticker))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "download cancelled", ctxErr)
	}

	for aggs.Next() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "download cancelled", ctxErr)
		}

		agg := aggs.Item()
		marketData := types.MarketData{
			Id:     "",
			Symbol: ticker,
			Time:   time.Time(agg.Timestamp),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		}

		if err = c.writer.Write(marketData); err != nil {
			return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write data", err)
		}

		rowsWritten++
		if rowsWritten%1000 == 0 {
			daysElapsed := int(time.Time(agg.Timestamp).Sub(startDate).Hours() / 24)
			bar.Set(daysElapsed)

			if onProgress != nil {
				onProgress(float64(daysElapsed), float64(totalDays), fmt.Sprintf("Downloading %s from Polygon", ticker))
			}
		}
	}

	if aggs.Err() != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "error iterating polygon aggregates", aggs.Err())
	}

	bar.Finish()

	if onProgress != nil {
		onProgress(float64(totalDays), float64(totalDays), fmt.Sprintf("Downloaded %s from Polygon", ticker))
	}

	outputPath, err := c.writer.Finalize()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to finalize writer", err)
	}

	return outputPath, nil
}
