package market

import (
	"sync"
	"time"
)

// SealedCandle is a candle that has been closed by the arrival of a tick in
// a later bucket.
type SealedCandle struct {
	Symbol    string
	Timeframe Timeframe
	Candle    Candle
}

// CandleBuilder aggregates ticks into candles for every supported timeframe
// simultaneously. For each symbol and timeframe there is at most one open
// bucket; when a tick lands in a strictly later bucket the old one is sealed
// and returned to the caller before the new bucket opens.
type CandleBuilder struct {
	mu      sync.Mutex
	current map[string]map[Timeframe]*Candle
}

// NewCandleBuilder creates an empty builder.
func NewCandleBuilder() *CandleBuilder {
	return &CandleBuilder{current: make(map[string]map[Timeframe]*Candle)}
}

// ProcessTick folds one trade price into every timeframe's open bucket and
// returns the candles sealed by this tick, if any. Non-positive prices are
// the caller's responsibility to filter.
func (b *CandleBuilder) ProcessTick(symbol string, price float64, at time.Time) []SealedCandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	buckets, ok := b.current[symbol]
	if !ok {
		buckets = make(map[Timeframe]*Candle, len(Timeframes))
		b.current[symbol] = buckets
	}

	var sealed []SealedCandle

	for _, tf := range Timeframes {
		start := tf.BucketStart(at)
		cur := buckets[tf]

		if cur != nil && start.After(cur.Timestamp) {
			sealed = append(sealed, SealedCandle{Symbol: symbol, Timeframe: tf, Candle: *cur})
			cur = nil
		}

		if cur == nil {
			c := Candle{Timestamp: start, Open: price, High: price, Low: price, Close: price}
			buckets[tf] = &c
			continue
		}

		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
		cur.Close = price
	}

	return sealed
}

// Current returns a copy of the open bucket for a symbol/timeframe, or false
// if no tick has opened one yet.
func (b *CandleBuilder) Current(symbol string, tf Timeframe) (Candle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.current[symbol][tf]; c != nil {
		return *c, true
	}
	return Candle{}, false
}
