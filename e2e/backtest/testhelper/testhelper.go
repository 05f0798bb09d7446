package testhelper

import (
	"context"
	"path/filepath"

	"github.com/andgamespace/backtest/internal/engine"
	v1 "github.com/andgamespace/backtest/internal/engine/engine_v1"
	"github.com/andgamespace/backtest/internal/engine/engine_v1/datasource"
	"github.com/andgamespace/backtest/internal/logger"
	"github.com/andgamespace/backtest/internal/strategy"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// E2ETestSuite is a base test suite for end-to-end backtest tests. Scenario
// suites embed it and call SetupTest with the engine config they need.
type E2ETestSuite struct {
	suite.Suite
	Backtest engine.Engine
}

// SetupTest initializes the backtest engine
func (s *E2ETestSuite) SetupTest(engineConfig string) {
	// initialize backtest engine
	backtest := v1.NewBacktestEngineV1()
	err := backtest.Initialize(engineConfig)
	s.Require().NoError(err)

	l, err := logger.NewLogger()
	s.Require().NoError(err)

	dataSource, err := datasource.NewDataSource(":memory:", l)
	s.Require().NoError(err)

	err = backtest.SetDataSource(dataSource)
	s.Require().NoError(err)

	s.Backtest = backtest
}

// RunStrategyTest loads the given strategies, runs them over the data files
// matched by dataPattern, and returns the folder results were written to.
// A nil strategyConfigs runs every strategy on its built-in defaults.
func RunStrategyTest(s *E2ETestSuite, dataPattern string, strategyConfigs []string, strategies ...strategy.Strategy) (resultsFolder string) {
	tmpFolder := s.T().TempDir()
	resultsFolder = filepath.Join(tmpFolder, "results")

	for _, strat := range strategies {
		err := s.Backtest.LoadStrategy(strat)
		require.NoError(s.T(), err)
	}

	if strategyConfigs == nil {
		strategyConfigs = []string{""}
	}

	err := s.Backtest.SetConfigContent(strategyConfigs)
	require.NoError(s.T(), err)

	err = s.Backtest.SetDataPath(dataPattern)
	require.NoError(s.T(), err)

	err = s.Backtest.SetResultsFolder(resultsFolder)
	require.NoError(s.T(), err)

	err = s.Backtest.Run(context.Background(), engine.LifecycleCallbacks{})
	require.NoError(s.T(), err)

	return resultsFolder
}
