package market

import (
	"log"
	"sync"

	"terminal-core/internal/events"
	"terminal-core/pkg/symbols"
)

// candleRetention caps the per-symbol/per-timeframe ring; the oldest sealed
// candle is evicted first.
const candleRetention = 1000

// Pipeline normalizes the tick stream: it maintains the live quote table,
// auto-registers symbol spellings, drives candle aggregation, and republishes
// tick and candle-close events. IngestTick is the only entry point into
// candle aggregation.
type Pipeline struct {
	bus        *events.Bus
	builder    *CandleBuilder
	normalizer *symbols.Normalizer

	mu      sync.RWMutex
	quotes  map[string]*Quote
	candles map[string]map[Timeframe][]Candle
}

// NewPipeline wires the pipeline to the event bus and symbol registry.
func NewPipeline(bus *events.Bus, normalizer *symbols.Normalizer) *Pipeline {
	return &Pipeline{
		bus:        bus,
		builder:    NewCandleBuilder(),
		normalizer: normalizer,
		quotes:     make(map[string]*Quote),
		candles:    make(map[string]map[Timeframe][]Candle),
	}
}

// IngestTick processes one quote update. Ticks with a non-positive last
// price are dropped. Sealed candles are stored and published before the tick
// event itself so bar handlers always see a fully-sealed candle ahead of the
// first tick of the next bucket.
func (p *Pipeline) IngestTick(q Quote) []SealedCandle {
	if q.Last <= 0 {
		log.Printf("market: dropping tick for %s with non-positive price %.5f", q.Name, q.Last)
		return nil
	}

	p.normalizer.AutoRegister(q.Name, q.DisplayName)

	p.mu.Lock()
	quote := q
	p.quotes[q.Name] = &quote
	p.mu.Unlock()

	sealed := p.builder.ProcessTick(q.Name, q.Last, q.TickTime)
	for _, sc := range sealed {
		p.storeCandle(sc.Symbol, sc.Timeframe, sc.Candle)
		p.bus.Publish(events.EventCandleClosed, events.CandleClosedPayload{
			Symbol:    sc.Symbol,
			Timeframe: string(sc.Timeframe),
			Candle:    sc.Candle,
		})
	}

	p.bus.Publish(events.EventTickReceived, quote)
	return sealed
}

// Quote returns the last seen quote for a symbol, or false if none arrived.
func (p *Pipeline) Quote(symbol string) (Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if q, ok := p.quotes[symbol]; ok {
		return *q, true
	}
	return Quote{}, false
}

// GetCandles returns up to count most recent candles for a symbol/timeframe,
// sealed history first, then the currently open bucket.
func (p *Pipeline) GetCandles(symbol string, tf Timeframe, count int) []Candle {
	p.mu.RLock()
	stored := p.candles[symbol][tf]
	out := make([]Candle, len(stored))
	copy(out, stored)
	p.mu.RUnlock()

	if cur, ok := p.builder.Current(symbol, tf); ok {
		out = append(out, cur)
	}

	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out
}

// ImportCandles seeds sealed history for a symbol/timeframe, oldest first.
// Used to warm up strategies from the broker's historical data.
func (p *Pipeline) ImportCandles(symbol string, tf Timeframe, candles []Candle) {
	for _, c := range candles {
		p.storeCandle(symbol, tf, c)
	}
}

func (p *Pipeline) storeCandle(symbol string, tf Timeframe, c Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byTF, ok := p.candles[symbol]
	if !ok {
		byTF = make(map[Timeframe][]Candle)
		p.candles[symbol] = byTF
	}

	ring := byTF[tf]
	if n := len(ring); n > 0 && ring[n-1].Timestamp.Equal(c.Timestamp) {
		ring[n-1] = c
	} else {
		ring = append(ring, c)
		if len(ring) > candleRetention {
			ring = ring[len(ring)-candleRetention:]
		}
	}
	byTF[tf] = ring
}
