package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andgamespace/backtest/internal/engine"
	"github.com/andgamespace/backtest/internal/engine/engine_v1/cache"
	"github.com/andgamespace/backtest/internal/engine/engine_v1/datasource"
	"github.com/andgamespace/backtest/internal/indicator"
	"github.com/andgamespace/backtest/internal/logger"
	"github.com/andgamespace/backtest/internal/marker"
	"github.com/andgamespace/backtest/internal/strategy"
	"github.com/andgamespace/backtest/internal/types"
	"github.com/andgamespace/backtest/internal/version"
	"github.com/andgamespace/backtest/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type BacktestEngineV1 struct {
	config              BacktestEngineV1Config
	strategies          []strategy.Strategy
	strategyConfigPaths []string
	strategyConfigs     []string
	dataPaths           []string
	resultsFolder       string
	log                 *logger.Logger
	indicatorRegistry   indicator.IndicatorRegistry
	marker              marker.Marker
	state               *BacktestState
	datasource          datasource.DataSource
	cache               cache.Cache
}

func NewBacktestEngineV1() engine.Engine {
	return &BacktestEngineV1{
		config:              EmptyConfig(),
		strategies:          nil,
		strategyConfigPaths: nil,
		strategyConfigs:     nil,
		dataPaths:           nil,
		resultsFolder:       "",
		log:                 nil,
		indicatorRegistry:   nil,
		marker:              nil,
		state:               nil,
		datasource:          nil,
		cache:               cache.NewCacheV1(),
	}
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	// parse the config
	err := yaml.Unmarshal([]byte(config), &b.config)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEngineConfigError, "failed to parse engine config", err)
	}

	// a malformed config is fatal here, never at fill time
	if err := b.config.Validate(); err != nil {
		return err
	}

	// initialize the logger
	var loggerError error

	b.log, loggerError = logger.NewLogger()
	if loggerError != nil {
		return loggerError
	}

	b.log.Debug("Backtest engine initialized",
		zap.String("config", config),
	)

	// initialize the indicator registry with every built-in indicator
	b.indicatorRegistry, err = indicator.NewDefaultIndicatorRegistry()
	if err != nil {
		return fmt.Errorf("failed to create indicator registry: %w", err)
	}

	// initialize the state
	b.state, err = NewBacktestState(b.log)
	if err != nil {
		return fmt.Errorf("failed to create backtest state: %w", err)
	}

	if err := b.state.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}

	return nil
}

// LoadStrategy implements engine.Engine.
func (b *BacktestEngineV1) LoadStrategy(s strategy.Strategy) error {
	b.strategies = append(b.strategies, s)
	b.log.Debug("Strategy loaded",
		zap.String("strategy", s.Name()),
		zap.Int("total_strategies", len(b.strategies)),
	)

	return nil
}

// SetConfigPath implements engine.Engine.
func (b *BacktestEngineV1) SetConfigPath(path string) error {
	// use glob to get all the files that match the path
	files, err := filepath.Glob(path)
	if err != nil {
		b.log.Error("Failed to set config path",
			zap.String("path", path),
			zap.Error(err),
		)

		return err
	}

	b.strategyConfigPaths = files
	b.log.Debug("Config paths set",
		zap.Strings("files", files),
	)

	return nil
}

// SetConfigContent implements engine.Engine.
func (b *BacktestEngineV1) SetConfigContent(configs []string) error {
	b.strategyConfigs = configs
	b.strategyConfigPaths = nil
	b.log.Debug("Config content set",
		zap.Int("count", len(configs)),
	)

	return nil
}

// SetDataPath implements engine.Engine.
func (b *BacktestEngineV1) SetDataPath(path string) error {
	// use glob to get all the files that match the path
	files, err := filepath.Glob(path)
	if err != nil {
		b.log.Error("Failed to set data path",
			zap.String("path", path),
			zap.Error(err),
		)

		return err
	}

	// Convert all paths to absolute paths
	absolutePaths := make([]string, len(files))

	for i, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			b.log.Error("Failed to get absolute path",
				zap.String("path", file),
				zap.Error(err),
			)

			return err
		}

		absolutePaths[i] = absPath
	}

	b.dataPaths = absolutePaths
	b.log.Debug("Data paths set",
		zap.Strings("files", absolutePaths),
	)

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder
	b.log.Debug("Results folder set",
		zap.String("folder", folder),
	)

	return nil
}

func (b *BacktestEngineV1) SetDataSource(datasource datasource.DataSource) error {
	b.datasource = datasource

	return nil
}

// configItem pairs a strategy config with a name usable as a folder segment.
type configItem struct {
	name    string
	content string
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) (runErr error) {
	if err := b.preRunCheck(); err != nil {
		return err
	}

	if callbacks.OnBacktestEnd != nil {
		defer func() {
			(*callbacks.OnBacktestEnd)(runErr)
		}()
	}

	// clean the results folder
	// remove results folder if it exists
	if _, err := os.Stat(b.resultsFolder); err == nil {
		os.RemoveAll(b.resultsFolder)
	}
	// create results folder
	os.MkdirAll(b.resultsFolder, 0755)

	// Build config list from either file paths or direct content
	configs, err := b.configItems()
	if err != nil {
		return err
	}

	if callbacks.OnBacktestStart != nil {
		if err := (*callbacks.OnBacktestStart)(len(b.strategies), len(configs), len(b.dataPaths)); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "backtest start callback failed", err)
		}
	}

	// Run strategies sequentially
	for strategyIndex, strat := range b.strategies {
		if callbacks.OnStrategyStart != nil {
			if err := (*callbacks.OnStrategyStart)(strategyIndex, strat.Name(), len(b.strategies)); err != nil {
				return errors.Wrap(errors.ErrCodeCallbackFailed, "strategy start callback failed", err)
			}
		}

		for configIndex, cfg := range configs {
			for dataFileIndex, dataPath := range b.dataPaths {
				if err := b.runCell(ctx, callbacks, strat, cfg, configIndex, dataPath, dataFileIndex); err != nil {
					return err
				}
			}
		}

		if callbacks.OnStrategyEnd != nil {
			(*callbacks.OnStrategyEnd)(strategyIndex, strat.Name())
		}
	}

	return nil
}

func (b *BacktestEngineV1) configItems() ([]configItem, error) {
	var configs []configItem

	if len(b.strategyConfigs) > 0 {
		for i, content := range b.strategyConfigs {
			configs = append(configs, configItem{
				name:    fmt.Sprintf("config_%d", i),
				content: content,
			})
		}

		return configs, nil
	}

	for _, configPath := range b.strategyConfigPaths {
		content, err := os.ReadFile(configPath)
		if err != nil {
			b.log.Error("Failed to read config",
				zap.String("config", configPath),
				zap.Error(err),
			)

			return nil, err
		}

		configs = append(configs, configItem{
			name:    configPath,
			content: string(content),
		})
	}

	return configs, nil
}

// runCell executes one strategy x config x data file combination with a fresh
// ledger, order book, marker, and state journal.
func (b *BacktestEngineV1) runCell(ctx context.Context, callbacks engine.LifecycleCallbacks, strat strategy.Strategy, cfg configItem, configIndex int, dataPath string, dataFileIndex int) error {
	if b.state == nil {
		return errors.New(errors.ErrCodeEngineStateNil, "backtest state is nil")
	}

	runID := newRunID()

	m, err := NewBacktestMarker(b.log)
	if err != nil {
		return fmt.Errorf("failed to create backtest marker: %w", err)
	}

	b.marker = m

	if err := b.state.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}

	ledger, err := NewLedger(b.config, b.state, NewOrderBook(), b.log)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	strategyContext := strategy.Context{
		DataSource:        b.datasource,
		IndicatorRegistry: b.indicatorRegistry,
		Cache:             b.cache,
		Marker:            b.marker,
	}

	if err := strat.Initialize(cfg.content); err != nil {
		return fmt.Errorf("failed to initialize strategy: %w", err)
	}

	resultFolderPath := getResultFolder(runID, cfg.name, dataPath, b, strat)

	b.log.Debug("Running strategy",
		zap.String("run_id", runID),
		zap.String("strategy", strat.Name()),
		zap.String("config", cfg.name),
		zap.String("data", dataPath),
		zap.String("result", resultFolderPath),
	)

	// Initialize the data source with the given data path
	if err := b.datasource.Initialize(dataPath); err != nil {
		return fmt.Errorf("failed to initialize data source: %w", err)
	}

	count, err := b.datasource.Count(b.config.StartTime, b.config.EndTime)
	if err != nil {
		return fmt.Errorf("failed to get data count: %w", err)
	}

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(runID, configIndex, cfg.name, dataFileIndex, dataPath, count); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "run start callback failed", err)
		}
	}

	// create a progress bar
	bar := progressbar.Default(int64(count))
	bar.Describe(fmt.Sprintf("Processing %s with %s", filepath.Base(dataPath), strat.Name()))

	currentCount := 0

	var lastBarTime time.Time

	for data, err := range b.datasource.ReadAll(b.config.StartTime, b.config.EndTime) {
		if err != nil {
			return fmt.Errorf("failed to read data: %w", err)
		}

		// cancellation lands between bars, never between a fill and its journal row
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeRunCancelled, "backtest cancelled", err)
		}

		if currentCount == 0 {
			// opening snapshot at the first bar's timestamp, before any fill
			if err := ledger.TakeSnapshot(data.Time); err != nil {
				return fmt.Errorf("failed to take opening snapshot: %w", err)
			}
		}

		ledger.ObservePrice(data.Symbol, data.Close)

		// pending limit and stop orders trigger against the bar before the
		// strategy sees it
		if _, err := ledger.ProcessPendingOrders(map[string]float64{data.Symbol: data.Close}, data.Time); err != nil {
			return fmt.Errorf("failed to process pending orders: %w", err)
		}

		signal, err := strat.GenerateSignal(strategyContext, data)
		if err != nil {
			return fmt.Errorf("failed to generate signal: %w", err)
		}

		if _, err := ledger.HandleSignal(signal, data); err != nil {
			return fmt.Errorf("failed to handle signal: %w", err)
		}

		lastBarTime = data.Time
		currentCount++
		bar.Add(1)

		// Call callback if provided
		if callbacks.OnProcessData != nil {
			if err := (*callbacks.OnProcessData)(currentCount, count); err != nil {
				return errors.Wrap(errors.ErrCodeCallbackFailed, "process data callback failed", err)
			}
		}
	}

	if currentCount > 0 {
		// closing snapshot so the final mark lands in the journal even when
		// the last bar produced no fill
		if err := ledger.TakeSnapshot(lastBarTime); err != nil {
			return fmt.Errorf("failed to take closing snapshot: %w", err)
		}
	}

	// orders still resting in the book are abandoned with the ledger

	performance := AnalyzePerformance(ledger.EquityHistory(), b.config.RiskFreeRate)

	// Create result folder
	os.MkdirAll(resultFolderPath, 0755)

	if err := b.writeResults(resultFolderPath, ledger, strat, dataPath, runID, performance); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	// Cleanup state
	if err := b.cleanUpRun(); err != nil {
		return fmt.Errorf("failed to cleanup run: %w", err)
	}

	if callbacks.OnRunEnd != nil {
		(*callbacks.OnRunEnd)(configIndex, cfg.name, dataFileIndex, dataPath, resultFolderPath)
	}

	return nil
}

func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	config := b.config

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return "", fmt.Errorf("failed to generate schema: %w", err)
	}

	return schema, nil
}

func (b *BacktestEngineV1) writeResults(resultFolderPath string, ledger *Ledger, strat strategy.Strategy, dataPath string, runID string, performance types.PerformanceMetrics) error {
	if b.state == nil {
		return errors.New(errors.ErrCodeEngineStateNil, "backtest state is nil")
	}

	statePath := filepath.Join(resultFolderPath, "state.db")

	apiVersion := version.GetVersion()
	if versioned, ok := strat.(strategy.WithApiVersion); ok {
		apiVersion = versioned.ApiVersion()
	}

	stats, err := b.state.GetStats(StatsContext{
		DataSource: b.datasource,
		Positions:  ledger.GetPositions(),
		RunID:      runID,
		Strategy: types.StrategyInfo{
			Name:       strat.Name(),
			ApiVersion: apiVersion,
		},
		DataPath:       dataPath,
		Performance:    performance,
		TradesPath:     filepath.Join(statePath, "trades.parquet"),
		OrdersPath:     filepath.Join(statePath, "orders.parquet"),
		EquityPath:     filepath.Join(statePath, "equity.parquet"),
		RejectionsPath: filepath.Join(statePath, "rejections.parquet"),
		MarksPath:      filepath.Join(resultFolderPath, "marks.parquet"),
	})
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	// Write stats to file
	if err := types.WriteTradeStats(filepath.Join(resultFolderPath, "stats.yaml"), stats); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}

	// Write state to disk
	if err := b.state.Write(statePath); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	// write the marker to disk
	if marker, ok := b.marker.(*BacktestMarker); ok {
		if err := marker.Write(resultFolderPath); err != nil {
			return fmt.Errorf("failed to write marker: %w", err)
		}
	}

	return nil
}

func (b *BacktestEngineV1) cleanUpRun() error {
	if b.state == nil {
		return errors.New(errors.ErrCodeEngineStateNil, "backtest state is nil")
	}

	if err := b.state.Cleanup(); err != nil {
		return fmt.Errorf("failed to cleanup state: %w", err)
	}

	// Cleanup the cache
	b.cache.Reset()

	// The marker is per-run, so close it rather than reuse it
	if marker, ok := b.marker.(*BacktestMarker); ok {
		if err := marker.Close(); err != nil {
			return fmt.Errorf("failed to close marker: %w", err)
		}
	}

	b.marker = nil

	return nil
}

func (b *BacktestEngineV1) preRunCheck() error {
	if len(b.strategies) == 0 {
		b.log.Error("No strategies loaded")

		return errors.New(errors.ErrCodeEngineNoStrategies, "no strategies loaded")
	}

	if len(b.strategyConfigPaths) == 0 && len(b.strategyConfigs) == 0 {
		b.log.Error("No strategy configs loaded")

		return errors.New(errors.ErrCodeEngineNoConfigs, "no strategy configs loaded")
	}

	if len(b.dataPaths) == 0 {
		b.log.Error("No data paths loaded")

		return errors.New(errors.ErrCodeEngineNoDataPaths, "no data paths loaded")
	}

	if b.resultsFolder == "" {
		b.log.Error("No results folder set")

		return errors.New(errors.ErrCodeEngineNoResultsDir, "no results folder set")
	}

	if b.datasource == nil {
		b.log.Error("No datasource set")

		return errors.New(errors.ErrCodeEngineNoDatasource, "no datasource set")
	}

	for _, strat := range b.strategies {
		versioned, ok := strat.(strategy.WithApiVersion)
		if !ok {
			continue
		}

		if err := version.CheckVersionCompatibility(version.GetVersion(), versioned.ApiVersion()); err != nil {
			b.log.Error("Strategy api version incompatible",
				zap.String("strategy", strat.Name()),
				zap.String("api_version", versioned.ApiVersion()),
				zap.Error(err),
			)

			return errors.Wrapf(errors.ErrCodeVersionMismatch, err, "strategy %s declares an incompatible api version", strat.Name())
		}
	}

	return nil
}
