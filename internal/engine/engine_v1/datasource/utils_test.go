package datasource

import (
	"testing"

	"github.com/andgamespace/backtest/internal/types"
	"github.com/stretchr/testify/suite"
)

type DatasourceUtilsTestSuite struct {
	suite.Suite
}

func TestDatasourceUtilsSuite(t *testing.T) {
	suite.Run(t, new(DatasourceUtilsTestSuite))
}

func (suite *DatasourceUtilsTestSuite) TestGetIntervalMinutes() {
	tests := []struct {
		interval        types.Interval
		expectedMinutes int
		expectError     bool
	}{
		{types.Interval1m, 1, false},
		{types.Interval5m, 5, false},
		{types.Interval15m, 15, false},
		{types.Interval30m, 30, false},
		{types.Interval1h, 60, false},
		{types.Interval4h, 240, false},
		{types.Interval1d, 1440, false},
	}

	for _, tc := range tests {
		suite.Run(string(tc.interval), func() {
			minutes, err := getIntervalMinutes(tc.interval)

			if tc.expectError {
				suite.Error(err)
			} else {
				suite.NoError(err)
				suite.Equal(tc.expectedMinutes, minutes)
			}
		})
	}
}

func (suite *DatasourceUtilsTestSuite) TestGetIntervalMinutesUnsupportedInterval() {
	unsupportedInterval := types.Interval("invalid")
	minutes, err := getIntervalMinutes(unsupportedInterval)

	suite.Error(err)
	suite.Equal(0, minutes)
	suite.Contains(err.Error(), "unsupported interval")
	suite.Contains(err.Error(), "invalid")
}

func (suite *DatasourceUtilsTestSuite) TestGetIntervalMinutesEmptyInterval() {
	emptyInterval := types.Interval("")
	minutes, err := getIntervalMinutes(emptyInterval)

	suite.Error(err)
	suite.Equal(0, minutes)
}

func (suite *DatasourceUtilsTestSuite) TestSymbolFromPath() {
	tests := []struct {
		path     string
		expected string
	}{
		{"AAPL_2020.csv", "AAPL"},
		{"data/AAPL_2020.parquet", "AAPL"},
		{"/abs/path/msft.csv", "MSFT"},
		{"spy-1d.csv", "SPY"},
		{"GOOGL.parquet", "GOOGL"},
	}

	for _, tc := range tests {
		suite.Run(tc.path, func() {
			suite.Equal(tc.expected, SymbolFromPath(tc.path))
		})
	}
}

func (suite *DatasourceUtilsTestSuite) TestSQLResultStruct() {
	result := SQLResult{
		Values: map[string]interface{}{
			"column1": "value1",
			"column2": 123,
			"column3": 45.67,
			"column4": true,
		},
	}

	suite.Equal("value1", result.Values["column1"])
	suite.Equal(123, result.Values["column2"])
	suite.Equal(45.67, result.Values["column3"])
	suite.Equal(true, result.Values["column4"])
}

func (suite *DatasourceUtilsTestSuite) TestSQLResultEmptyValues() {
	result := SQLResult{
		Values: map[string]interface{}{},
	}

	suite.Empty(result.Values)
	suite.Nil(result.Values["nonexistent"])
}

func (suite *DatasourceUtilsTestSuite) TestSQLResultNilValues() {
	result := SQLResult{}

	suite.Nil(result.Values)
}
