package market

import (
	"fmt"
	"time"
)

// Timeframe is a fixed candle aggregation period.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// Timeframes lists every supported timeframe in ascending duration order.
var Timeframes = []Timeframe{
	TimeframeM1, TimeframeM5, TimeframeM15, TimeframeM30,
	TimeframeH1, TimeframeH4, TimeframeD1,
}

var timeframeMinutes = map[Timeframe]int{
	TimeframeM1:  1,
	TimeframeM5:  5,
	TimeframeM15: 15,
	TimeframeM30: 30,
	TimeframeH1:  60,
	TimeframeH4:  240,
	TimeframeD1:  1440,
}

// Minutes returns the timeframe length in minutes, or 0 if unknown.
func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

// Duration returns the timeframe length as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(timeframeMinutes[tf]) * time.Minute
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeMinutes[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// BucketStart floors t to the candle boundary for the timeframe: minute
// frames floor to a multiple-of-N minute, hour frames to a multiple-of-N
// hour, D1 to midnight.
func (tf Timeframe) BucketStart(t time.Time) time.Time {
	minutes := timeframeMinutes[tf]
	switch {
	case minutes < 60:
		m := (t.Minute() / minutes) * minutes
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, t.Location())
	case minutes < 1440:
		hours := minutes / 60
		h := (t.Hour() / hours) * hours
		return time.Date(t.Year(), t.Month(), t.Day(), h, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

// Candle is one OHLC bucket. It is mutable while it is the open bucket of a
// builder and must be treated as immutable once sealed.
type Candle struct {
	Timestamp time.Time // bucket start
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// NewCandle builds a candle and clamps high/low so the OHLC invariant
// (low <= min(open,close), high >= max(open,close)) holds on construction.
func NewCandle(ts time.Time, open, high, low, close, volume float64) Candle {
	if m := max3(open, close, low); high < m {
		high = m
	}
	if m := min3(open, close, high); low > m {
		low = m
	}
	return Candle{Timestamp: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
