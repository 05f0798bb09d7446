package cache

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

// CacheTestSuite is a test suite for CacheV1
type CacheTestSuite struct {
	suite.Suite
	cache *CacheV1
}

// SetupTest runs before each test
func (suite *CacheTestSuite) SetupTest() {
	suite.cache = NewCacheV1().(*CacheV1)
}

// TestCacheSuite runs the test suite
func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

// TestNewCacheV1 tests the creation of a new CacheV1 instance
func (suite *CacheTestSuite) TestNewCacheV1() {
	cache := NewCacheV1()
	suite.Require().NotNil(cache)
	suite.IsType(&CacheV1{}, cache)
}

// TestReset tests the Reset functionality
func (suite *CacheTestSuite) TestReset() {
	// Set some initial state
	initialState := CrossoverState{
		Initialized: true,
		PrevFast:    101.5,
		PrevSlow:    100.0,
		Symbol:      "AAPL",
	}
	suite.cache.CrossoverState = optional.Some(initialState)
	suite.cache.otherData = map[string]any{
		"test": "value",
	}

	// Reset the cache
	suite.cache.Reset()

	// Verify the cache is reset
	suite.True(suite.cache.CrossoverState.IsNone())
	suite.True(suite.cache.RsiState.IsNone())
	suite.Empty(suite.cache.otherData)
}

// TestSetAndGet tests the Set and Get functionality
func (suite *CacheTestSuite) TestSetAndGet() {
	// Test setting and getting a value
	key := "testKey"
	value := "testValue"
	suite.cache.Set(key, value)

	// Verify the value can be retrieved
	retrievedValue, exists := suite.cache.Get(key)
	suite.True(exists)
	suite.Equal(value, retrievedValue)

	// Test getting a non-existent key
	_, exists = suite.cache.Get("nonExistentKey")
	suite.False(exists)
}

// TestCrossoverState tests the CrossoverState functionality
func (suite *CacheTestSuite) TestCrossoverState() {
	// Test initial state is None
	suite.True(suite.cache.CrossoverState.IsNone())

	// Test setting CrossoverState
	state := CrossoverState{
		Initialized: true,
		PrevFast:    102.3,
		PrevSlow:    99.8,
		Symbol:      "AAPL",
	}
	suite.cache.CrossoverState = optional.Some(state)

	// Verify the state is set correctly
	suite.True(suite.cache.CrossoverState.IsSome())
	retrievedState := suite.cache.CrossoverState.Unwrap()
	suite.Equal(state, retrievedState)
}

// TestRsiState tests the RsiState functionality
func (suite *CacheTestSuite) TestRsiState() {
	suite.True(suite.cache.RsiState.IsNone())

	state := RsiState{
		Initialized: true,
		PrevRsi:     28.4,
		Symbol:      "AAPL",
	}
	suite.cache.RsiState = optional.Some(state)

	suite.True(suite.cache.RsiState.IsSome())
	suite.Equal(state, suite.cache.RsiState.Unwrap())
}
