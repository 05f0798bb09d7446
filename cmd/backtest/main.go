package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v2"

	"github.com/andgamespace/backtest/internal/engine"
	enginev1 "github.com/andgamespace/backtest/internal/engine/engine_v1"
	"github.com/andgamespace/backtest/internal/engine/engine_v1/datasource"
	"github.com/andgamespace/backtest/internal/logger"
	"github.com/andgamespace/backtest/internal/strategy"
)

// strategyConstructors maps CLI strategy names to the built-in strategies.
var strategyConstructors = map[string]func() strategy.Strategy{
	"sma_crossover": strategy.NewSmaCrossover,
	"rsi_threshold": strategy.NewRsiThreshold,
}

func availableStrategies() []string {
	names := make([]string, 0, len(strategyConstructors))
	for name := range strategyConstructors {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// runAction wires up the engine from CLI flags and executes the backtest.
func runAction(ctx context.Context, cmd *cli.Command) error {
	engineConfig, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read engine config: %w", err)
	}

	eng := enginev1.NewBacktestEngineV1()
	if err := eng.Initialize(string(engineConfig)); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	for _, name := range strings.Split(cmd.String("strategy"), ",") {
		name = strings.TrimSpace(name)

		construct, ok := strategyConstructors[name]
		if !ok {
			return fmt.Errorf("unknown strategy %q, available: %s", name, strings.Join(availableStrategies(), ", "))
		}

		if err := eng.LoadStrategy(construct()); err != nil {
			return fmt.Errorf("failed to load strategy %s: %w", name, err)
		}
	}

	// Without explicit strategy configs every strategy runs on its defaults.
	if strategyConfig := cmd.String("strategy-config"); strategyConfig != "" {
		if err := eng.SetConfigPath(strategyConfig); err != nil {
			return fmt.Errorf("failed to set strategy config path: %w", err)
		}
	} else if err := eng.SetConfigContent([]string{""}); err != nil {
		return fmt.Errorf("failed to set strategy config: %w", err)
	}

	if err := eng.SetDataPath(cmd.String("data")); err != nil {
		return fmt.Errorf("failed to set data path: %w", err)
	}

	if err := eng.SetResultsFolder(cmd.String("results")); err != nil {
		return fmt.Errorf("failed to set results folder: %w", err)
	}

	appLog, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	source, err := datasource.NewDataSource(":memory:", appLog)
	if err != nil {
		return fmt.Errorf("failed to create data source: %w", err)
	}

	if err := eng.SetDataSource(source); err != nil {
		return fmt.Errorf("failed to set data source: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	onRunStart := engine.OnRunStartCallback(func(runID string, _ int, configName string, _ int, dataFilePath string, totalDataPoints int) error {
		fmt.Printf("Run %s: config=%s data=%s bars=%d\n", runID, configName, filepath.Base(dataFilePath), totalDataPoints)

		return nil
	})
	onRunEnd := engine.OnRunEndCallback(func(_ int, _ string, _ int, _ string, resultFolderPath string) {
		fmt.Printf("Results written to %s\n", resultFolderPath)
	})
	onBacktestEnd := engine.OnBacktestEndCallback(func(err error) {
		if err != nil {
			fmt.Printf("Backtest finished with error: %v\n", err)
		} else {
			fmt.Println("Backtest finished")
		}
	})

	callbacks := engine.LifecycleCallbacks{
		OnRunStart:    &onRunStart,
		OnRunEnd:      &onRunEnd,
		OnBacktestEnd: &onBacktestEnd,
	}

	if err := eng.Run(runCtx, callbacks); err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	return nil
}

// getSchemaReference returns the yaml-language-server header line pointing
// editors at the schema file.
func getSchemaReference(schemaName string) string {
	return "# yaml-language-server: $schema=" + schemaName + "\n"
}

// generateSchemaFile writes the engine config JSON schema to schemaPath,
// creating parent directories as needed.
func generateSchemaFile(config enginev1.BacktestEngineV1Config, schemaPath string) error {
	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}

	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}

	return nil
}

// generateSampleConfig writes a sample config annotated for
// yaml-language-server. An existing file is left untouched.
func generateSampleConfig(config enginev1.BacktestEngineV1Config, samplePath string, schemaName string) error {
	if _, err := os.Stat(samplePath); err == nil {
		return nil
	}

	yamlBytes, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config: %w", err)
	}

	yamlBytes = append([]byte(getSchemaReference(schemaName)), yamlBytes...)

	if err := os.WriteFile(samplePath, yamlBytes, 0644); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}

	return nil
}

// schemaAction writes the engine config JSON schema and, when missing, a
// sample config next to it.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	outputDir := cmd.String("output")

	config := enginev1.EmptyConfig()

	schemaName := "backtest-engine-v1-config.json"
	schemaPath := filepath.Join(outputDir, schemaName)
	samplePath := filepath.Join(outputDir, "backtest-engine-v1-config.yaml")

	if err := generateSchemaFile(config, schemaPath); err != nil {
		return err
	}

	if err := generateSampleConfig(config, samplePath, schemaName); err != nil {
		return err
	}

	fmt.Printf("Schema written to %s\n", schemaPath)
	fmt.Printf("Sample config available at %s\n", samplePath)

	return nil
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "Run trading strategies against historical market data",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a backtest over Parquet market data",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine config YAML",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "strategy",
						Aliases:  []string{"s"},
						Usage:    fmt.Sprintf("Comma-separated strategy names (%s)", strings.Join(availableStrategies(), ", ")),
						Value:    "sma_crossover",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "strategy-config",
						Usage:    "Glob of strategy config YAML files",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Glob of market data Parquet files",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "results",
						Aliases:  []string{"r"},
						Usage:    "Directory backtest results are written to",
						Value:    "results",
						Required: false,
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Generate the engine config JSON schema and a sample config",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Directory the schema and sample config are written to",
						Value:    "config",
						Required: false,
					},
				},
				Action: schemaAction,
			},
		},
	}
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
