package marketdata

import "github.com/polygon-io/client-go/rest/models"

// Timespan is a bar interval in provider-neutral notation, e.g. "5m" or
// "1d". Each timespan decomposes into a multiplier and an aggregate unit
// (5 x minute) for providers that take the pair separately.
type Timespan string

const (
	TimespanOneSecond      Timespan = "1s"
	TimespanOneMinute      Timespan = "1m"
	TimespanThreeMinutes   Timespan = "3m"
	TimespanFiveMinutes    Timespan = "5m"
	TimespanFifteenMinutes Timespan = "15m"
	TimespanThirtyMinutes  Timespan = "30m"
	TimespanOneHour        Timespan = "1h"
	TimespanTwoHours       Timespan = "2h"
	TimespanFourHours      Timespan = "4h"
	TimespanSixHours       Timespan = "6h"
	TimespanEightHours     Timespan = "8h"
	TimespanTwelveHours    Timespan = "12h"
	TimespanOneDay         Timespan = "1d"
	TimespanThreeDays      Timespan = "3d"
	TimespanOneWeek        Timespan = "1w"
	TimespanOneMonth       Timespan = "1M"
)

var timespanAggregates = map[Timespan]struct {
	multiplier int
	unit       models.Timespan
}{
	TimespanOneSecond:      {1, models.Second},
	TimespanOneMinute:      {1, models.Minute},
	TimespanThreeMinutes:   {3, models.Minute},
	TimespanFiveMinutes:    {5, models.Minute},
	TimespanFifteenMinutes: {15, models.Minute},
	TimespanThirtyMinutes:  {30, models.Minute},
	TimespanOneHour:        {1, models.Hour},
	TimespanTwoHours:       {2, models.Hour},
	TimespanFourHours:      {4, models.Hour},
	TimespanSixHours:       {6, models.Hour},
	TimespanEightHours:     {8, models.Hour},
	TimespanTwelveHours:    {12, models.Hour},
	TimespanOneDay:         {1, models.Day},
	TimespanThreeDays:      {3, models.Day},
	TimespanOneWeek:        {1, models.Week},
	TimespanOneMonth:       {1, models.Month},
}

// Multiplier returns how many aggregate units make up one bar of this
// timespan. Unknown timespans default to 1.
func (t Timespan) Multiplier() int {
	if agg, ok := timespanAggregates[t]; ok {
		return agg.multiplier
	}

	return 1
}

// Unit returns the aggregate unit underlying this timespan. Unknown
// timespans default to daily.
func (t Timespan) Unit() models.Timespan {
	if agg, ok := timespanAggregates[t]; ok {
		return agg.unit
	}

	return models.Day
}
