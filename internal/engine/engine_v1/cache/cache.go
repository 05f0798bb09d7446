package cache

import (
	"github.com/moznion/go-optional"
)

type Cache interface {
	Reset()
}

// CrossoverState carries the previous fast/slow moving average values so a
// strategy can detect the bar on which the lines cross.
type CrossoverState struct {
	Initialized bool    `json:"initialized"`
	PrevFast    float64 `json:"prev_fast"`
	PrevSlow    float64 `json:"prev_slow"`
	Symbol      string  `json:"symbol"` // Symbol this state applies to
}

// RsiState carries the previous RSI reading so a strategy can act only on
// threshold crossings instead of every bar spent in the zone.
type RsiState struct {
	Initialized bool    `json:"initialized"`
	PrevRsi     float64 `json:"prev_rsi"`
	Symbol      string  `json:"symbol"` // Symbol this state applies to
}

type CacheV1 struct {
	CrossoverState optional.Option[CrossoverState]
	RsiState       optional.Option[RsiState]
	otherData      map[string]any
}

func NewCacheV1() Cache {
	return &CacheV1{
		CrossoverState: optional.None[CrossoverState](),
		RsiState:       optional.None[RsiState](),
		otherData:      make(map[string]any),
	}
}

// Reset implements cache.Cache.
func (c *CacheV1) Reset() {
	c.CrossoverState = optional.None[CrossoverState]()
	c.RsiState = optional.None[RsiState]()
	c.otherData = make(map[string]any)
}

// Set cache data by key. Don't use this method if you want to add a state for a strategy's
// well-known indicator. Modify the CacheV1 struct directly.
func (c *CacheV1) Set(key string, value any) {
	c.otherData[key] = value
}

// Get cache data by key.
func (c *CacheV1) Get(key string) (any, bool) {
	value, ok := c.otherData[key]
	return value, ok
}
