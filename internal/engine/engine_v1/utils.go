package engine

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andgamespace/backtest/internal/strategy"
	"github.com/oklog/ulid/v2"
)

var (
	runIDMu   sync.Mutex
	runIDMono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so run id entropy is unpredictable.
	// ulid.Monotonic keeps ids generated within the same millisecond
	// lexicographically increasing.
	var seed int64

	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)

	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	runIDMono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// newRunID returns a ULID string identifying a single strategy-config-data
// run. ULIDs sort by generation time, so result folders list in run order.
func newRunID() string {
	runIDMu.Lock()
	defer runIDMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), runIDMono).String()
}

func getResultFolder(runID string, configPath string, dataPath string, b *BacktestEngineV1, strat strategy.Strategy) string {
	// Create base folders for run, strategy and config
	runFolder := filepath.Join(b.resultsFolder, runID)
	strategyFolder := filepath.Join(runFolder, strat.Name())
	configFolder := filepath.Join(strategyFolder, strings.TrimSuffix(filepath.Base(configPath), filepath.Ext(configPath)))

	// Create data folder with time range if specified
	var dataFolder string

	if b.config.StartTime.IsSome() || b.config.EndTime.IsSome() {
		startTimeStr := "all"
		endTimeStr := "all"

		if b.config.StartTime.IsSome() {
			startTimeStr = b.config.StartTime.Unwrap().Format("20060102")
		}

		if b.config.EndTime.IsSome() {
			endTimeStr = b.config.EndTime.Unwrap().Format("20060102")
		}

		timeRange := fmt.Sprintf("%s_%s", startTimeStr, endTimeStr)
		dataFolder = filepath.Join(configFolder, timeRange)
	} else {
		dataFolder = configFolder
	}

	// Add data file name as the final folder
	dataFileName := strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))

	return filepath.Join(dataFolder, dataFileName)
}
