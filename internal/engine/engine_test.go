package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terminal-core/internal/broker"
	"terminal-core/internal/events"
	"terminal-core/internal/execution"
	"terminal-core/internal/market"
	"terminal-core/internal/position"
	"terminal-core/internal/risk"
	"terminal-core/internal/strategy"
	"terminal-core/pkg/symbols"
)

type harness struct {
	engine  *Engine
	paper   *broker.Paper
	tracker *position.Tracker
	cancel  context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	bus := events.NewBus()
	normalizer := symbols.NewNormalizer()
	pipeline := market.NewPipeline(bus, normalizer)
	tracker := position.NewTracker(bus)
	riskMgr := risk.NewManager(risk.DefaultConfig(), bus, 10000)
	paper := broker.NewPaper(pipeline, 10000)
	require.NoError(t, paper.Connect(context.Background()))
	exec := execution.NewService(bus, paper, tracker, riskMgr)

	e := New(Options{
		Bus:        bus,
		Pipeline:   pipeline,
		Exec:       exec,
		Tracker:    tracker,
		Risk:       riskMgr,
		Normalizer: normalizer,
		Deps:       strategy.Deps{Bus: bus, Balance: riskMgr.Balance},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(cancel)

	return &harness{engine: e, paper: paper, tracker: tracker, cancel: cancel}
}

func quoteAt(last float64, at time.Time) market.Quote {
	return market.Quote{
		Name:        "TSE|2885",
		DisplayName: "TSE:2885",
		Bid:         last - 0.0001,
		Ask:         last + 0.0001,
		Last:        last,
		TickTime:    at,
	}
}

func triggerConfig(name string) strategy.Config {
	return strategy.Config{
		Name:           name,
		Kind:           strategy.KindFixedPrice,
		Symbol:         "TSE|2885",
		Timeframe:      market.TimeframeM1,
		Parameters:     map[string]any{"trigger_price": 100.0, "direction": "buy"},
		LotSize:        0.1,
		StopLossPips:   50,
		TakeProfitPips: 100,
	}
}

func TestSignalToFillToStopLoss(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.RegisterStrategy(ctx, triggerConfig("fp")))
	require.NoError(t, h.engine.StartStrategy(ctx, "fp"))

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// First tick sits above the trigger: nothing happens.
	h.engine.OnQuote(quoteAt(100.5, at))
	// Second tick crosses the trigger: the strategy buys.
	h.engine.OnQuote(quoteAt(99.9, at.Add(time.Second)))

	require.Eventually(t, func() bool {
		open, err := h.engine.OpenPositions(ctx)
		return err == nil && len(open) == 1
	}, 2*time.Second, 10*time.Millisecond, "trigger tick should open a position")

	open, err := h.engine.OpenPositions(ctx)
	require.NoError(t, err)
	pos := open[0].Order
	assert.InDelta(t, 99.9+0.0001, pos.OpenPrice, 1e-9, "paper fill lands at the ask")
	assert.InDelta(t, 99.9-50*0.0001, pos.StopLoss, 1e-9)

	// A tick through the stop triggers the protective net.
	h.engine.OnQuote(quoteAt(99.89, at.Add(2*time.Second)))

	require.Eventually(t, func() bool {
		open, err := h.engine.OpenPositions(ctx)
		return err == nil && len(open) == 0
	}, 2*time.Second, 10*time.Millisecond, "stop hit should close the position")

	stats, err := h.engine.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, 1, stats.Losses)
}

func TestBarsDeliveredBeforeSealingTick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cfg := strategy.Config{
		Name:       "ma",
		Kind:       strategy.KindMACrossover,
		Symbol:     "TSE|2885",
		Timeframe:  market.TimeframeM1,
		Parameters: map[string]any{"fast_period": 2, "slow_period": 3},
		LotSize:    0.1, StopLossPips: 50, TakeProfitPips: 50000,
	}
	require.NoError(t, h.engine.RegisterStrategy(ctx, cfg))
	require.NoError(t, h.engine.StartStrategy(ctx, "ma"))

	// Six one-minute buckets; closes 10,10,10,13,14,15 force a golden
	// cross on the fourth sealed bar.
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	closes := []float64{10, 10, 10, 13, 14, 15}
	for i, c := range closes {
		h.engine.OnQuote(quoteAt(c, start.Add(time.Duration(i)*time.Minute)))
	}

	require.Eventually(t, func() bool {
		open, err := h.engine.OpenPositions(ctx)
		return err == nil && len(open) == 1
	}, 2*time.Second, 10*time.Millisecond, "golden cross on sealed bars should open a position")

	st, err := h.engine.StrategyState(ctx, "ma")
	require.NoError(t, err)
	require.NotNil(t, st.LastSignal)
	assert.Equal(t, strategy.SignalBuy, st.LastSignal.Type)
	assert.Equal(t, 13.0, st.LastSignal.Price, "signal price is the sealed bar close, not the live tick")
}

func TestRunningCapThroughEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < strategy.DefaultMaxRunning+1; i++ {
		name := fmt.Sprintf("s%d", i)
		require.NoError(t, h.engine.RegisterStrategy(ctx, triggerConfig(name)))
	}
	for i := 0; i < strategy.DefaultMaxRunning; i++ {
		require.NoError(t, h.engine.StartStrategy(ctx, fmt.Sprintf("s%d", i)))
	}
	err := h.engine.StartStrategy(ctx, fmt.Sprintf("s%d", strategy.DefaultMaxRunning))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestDoAfterShutdown(t *testing.T) {
	h := newHarness(t)
	h.cancel()

	require.Eventually(t, func() bool {
		err := h.engine.Do(context.Background(), func() error { return nil })
		return err == ErrStopped
	}, 2*time.Second, 10*time.Millisecond)
}
