package domain

// Bar is one OHLCV candle. Bars are immutable and supplied oldest first.
// Corresponds to bars table in ClickHouse.
type Bar struct {
	TimestampMs int64   // candle open time (ms)
	Open        float64 // open price
	High        float64 // high price
	Low         float64 // low price
	Close       float64 // close price
	Volume      float64 // base volume
}

// timeframeSeconds maps supported timeframes to their duration.
var timeframeSeconds = map[string]int64{
	"1m":  60,
	"3m":  180,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"2h":  7200,
	"4h":  14400,
	"6h":  21600,
	"12h": 43200,
	"1d":  86400,
	"1w":  604800,
}

// TimeframeSeconds returns the expected seconds between bars for a timeframe.
// The second value is false for unknown timeframes.
func TimeframeSeconds(timeframe string) (int64, bool) {
	s, ok := timeframeSeconds[timeframe]
	return s, ok
}
