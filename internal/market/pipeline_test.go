package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terminal-core/internal/events"
	"terminal-core/pkg/symbols"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(events.NewBus(), symbols.NewNormalizer())
}

func tick(sym string, price float64, ts time.Time) Quote {
	return Quote{Name: sym, DisplayName: sym, Bid: price, Ask: price, Last: price, TickTime: ts}
}

func TestIngestTickDropsNonPositivePrice(t *testing.T) {
	p := newTestPipeline()

	p.IngestTick(tick("X", 0, at(10, 0, 0)))
	p.IngestTick(tick("X", -5, at(10, 0, 1)))

	_, ok := p.Quote("X")
	assert.False(t, ok, "dropped ticks must not update the quote table")
	assert.Empty(t, p.GetCandles("X", TimeframeM1, 10))
}

func TestIngestTickUpdatesQuoteTable(t *testing.T) {
	p := newTestPipeline()

	p.IngestTick(tick("X", 100, at(10, 0, 0)))
	p.IngestTick(tick("X", 101, at(10, 0, 1)))

	q, ok := p.Quote("X")
	require.True(t, ok)
	assert.Equal(t, 101.0, q.Last, "quote table keeps only the latest tick")
}

func TestSealedCandlePublishedBeforeTick(t *testing.T) {
	bus := events.NewBus()
	p := NewPipeline(bus, symbols.NewNormalizer())

	feed, unsub := bus.SubscribeAll(16)
	defer unsub()

	p.IngestTick(tick("X", 100, at(10, 0, 0)))
	p.IngestTick(tick("X", 101, at(10, 1, 0))) // seals the M1 bucket

	var order []events.Event
	for len(order) < 3 {
		env := <-feed
		if env.Topic == events.EventCandleClosed || env.Topic == events.EventTickReceived {
			order = append(order, env.Topic)
		}
	}

	// tick, then candle-close ahead of the sealing tick's own event
	require.Equal(t, events.EventTickReceived, order[0])
	assert.Equal(t, events.EventCandleClosed, order[1])
	assert.Equal(t, events.EventTickReceived, order[2])
}

func TestGetCandlesIncludesOpenBucket(t *testing.T) {
	p := newTestPipeline()

	p.IngestTick(tick("X", 100, at(10, 0, 0)))
	p.IngestTick(tick("X", 102, at(10, 1, 0)))
	p.IngestTick(tick("X", 101, at(10, 2, 0)))

	candles := p.GetCandles("X", TimeframeM1, 10)
	require.Len(t, candles, 3, "two sealed + one open")
	assert.Equal(t, 100.0, candles[0].Close)
	assert.Equal(t, 101.0, candles[2].Close)

	// count limits from the most recent end
	tail := p.GetCandles("X", TimeframeM1, 2)
	require.Len(t, tail, 2)
	assert.Equal(t, 102.0, tail[0].Close)
}

func TestCandleRetentionEviction(t *testing.T) {
	p := newTestPipeline()

	start := at(0, 0, 0)
	// 1100 sealed M1 candles; retention keeps the newest 1000.
	for i := 0; i <= 1100; i++ {
		p.IngestTick(tick("X", 100+float64(i%7), start.Add(time.Duration(i)*time.Minute)))
	}

	candles := p.GetCandles("X", TimeframeM1, 0)
	require.Len(t, candles, candleRetention+1) // ring + open bucket

	oldest := candles[0].Timestamp
	assert.Equal(t, start.Add(100*time.Minute), oldest, "oldest candles evicted FIFO")
}

func TestAutoRegistersSymbolMapping(t *testing.T) {
	norm := symbols.NewNormalizer()
	p := NewPipeline(events.NewBus(), norm)

	p.IngestTick(Quote{
		Name:        "MCX|467741",
		DisplayName: "MCX:NATURALGAS26DEC25",
		Last:        245.5,
		TickTime:    at(10, 0, 0),
	})

	assert.True(t, norm.Match("MCX:NATURALGAS26DEC25", "MCX|467741"))
}

func TestParseHistoryVolumeFallback(t *testing.T) {
	payload := []byte(`[
		{"ssboe":"1717320300","into":"101","inth":"103","intl":"100","intc":"102","intv":"40"},
		{"ssboe":"1717320000","into":"100","inth":"102","intl":"99","intc":"101","v":"250","intv":"30"}
	]`)

	candles, err := ParseHistory(payload)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// oldest first after the flip
	assert.Equal(t, 250.0, candles[0].Volume, `"v" takes precedence`)
	assert.Equal(t, 40.0, candles[1].Volume, `falls back to "intv"`)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
}
