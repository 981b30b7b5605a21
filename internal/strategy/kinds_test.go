package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terminal-core/internal/market"
	"terminal-core/internal/order"
)

func sinkInto(s Strategy, got *[]Signal) {
	baseOf(s).sink = func(sig Signal) { *got = append(*got, sig) }
}

func barAt(t time.Time, close float64) market.Candle {
	return market.Candle{Timestamp: t, Open: close, High: close, Low: close, Close: close}
}

func TestMACrossoverSignals(t *testing.T) {
	s := NewMACrossover("ma", Deps{})
	cfg := testConfig("ma")
	cfg.Kind = KindMACrossover
	cfg.Parameters = map[string]any{"fast_period": 2, "slow_period": 3}
	cfg.MaxConcurrentPositions = 10
	require.NoError(t, s.Initialize(cfg))
	require.NoError(t, s.Start())

	var got []Signal
	sinkInto(s, &got)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	closes := []float64{10, 10, 10, 13, 14, 5}
	for i, c := range closes {
		require.NoError(t, s.OnBar(market.TimeframeM1, barAt(start.Add(time.Duration(i)*time.Minute), c)))
	}

	require.Len(t, got, 2)
	assert.Equal(t, SignalBuy, got[0].Type, "fast crossing above slow is a golden cross")
	assert.Equal(t, 13.0, got[0].Price)
	assert.Equal(t, SignalSell, got[1].Type, "fast crossing below slow is a death cross")
	assert.Equal(t, 5.0, got[1].Price)

	// Stop loss and take profit ride the configured pip distances.
	assert.InDelta(t, 13-50*order.PipUnit, got[0].StopLoss, 1e-9)
	assert.InDelta(t, 13+100*order.PipUnit, got[0].TakeProfit, 1e-9)
}

func TestMACrossoverRejectsBadPeriods(t *testing.T) {
	s := NewMACrossover("ma", Deps{})
	cfg := testConfig("ma")
	cfg.Kind = KindMACrossover
	cfg.Parameters = map[string]any{"fast_period": 30, "slow_period": 10}
	require.Error(t, s.Initialize(cfg))
}

func TestFixedPriceTriggerAndRearm(t *testing.T) {
	s := NewFixedPrice("fp", Deps{})
	cfg := testConfig("fp")
	cfg.Parameters = map[string]any{"trigger_price": 1.1000, "direction": "buy"}
	require.NoError(t, s.Initialize(cfg))
	require.NoError(t, s.Start())

	var got []Signal
	sinkInto(s, &got)

	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.1050}))
	assert.Empty(t, got, "price above a buy trigger must not fire")

	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.0990}))
	require.Len(t, got, 1)
	assert.Equal(t, SignalBuy, got[0].Type)

	// Quiet until the opened position closes.
	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.0980}))
	assert.Len(t, got, 1)

	s.OnOrderUpdate(order.Order{Ticket: 1, Status: order.StatusActive, Comment: "fp:entry"})
	s.OnOrderUpdate(order.Order{
		Ticket: 1, Status: order.StatusClosed, Side: order.SideBuy,
		Volume: 1, OpenPrice: 1.0990, ClosePrice: 1.1010, Comment: "fp:entry",
	})

	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.0985}))
	assert.Len(t, got, 2, "trigger re-arms after the position closes")
}

func TestFixedPriceSellDirection(t *testing.T) {
	s := NewFixedPrice("fps", Deps{})
	cfg := testConfig("fps")
	cfg.Parameters = map[string]any{"trigger_price": 1.2000, "direction": "sell"}
	require.NoError(t, s.Initialize(cfg))
	require.NoError(t, s.Start())

	var got []Signal
	sinkInto(s, &got)

	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.1990}))
	assert.Empty(t, got)

	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.2005}))
	require.Len(t, got, 1)
	assert.Equal(t, SignalSell, got[0].Type)
	assert.InDelta(t, 1.2005+50*order.PipUnit, got[0].StopLoss, 1e-9)
}

func TestTimeBreakoutArmsAndFiresOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC)
	clock := &now
	s := NewTimeBreakout("tb", Deps{Now: func() time.Time { return *clock }})
	cfg := testConfig("tb")
	cfg.Parameters = map[string]any{"target_hour": 9, "buy_level": 1.2000}
	require.NoError(t, s.Initialize(cfg))
	require.NoError(t, s.Start())

	var got []Signal
	sinkInto(s, &got)

	// Before the target time nothing arms, even through the level.
	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.2010}))
	assert.Empty(t, got)

	now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.1950}))
	assert.Empty(t, got, "arming tick records the reference price only")

	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.2003}))
	require.Len(t, got, 1)
	assert.Equal(t, SignalBuy, got[0].Type)

	// One shot per day: further crossings stay quiet.
	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.1950}))
	require.NoError(t, s.OnTick(market.Quote{Name: "NSE|2885", Last: 1.2008}))
	assert.Len(t, got, 1)
}

func TestTimeBreakoutRequiresALevel(t *testing.T) {
	s := NewTimeBreakout("tb", Deps{})
	cfg := testConfig("tb")
	cfg.Parameters = map[string]any{"target_hour": 9}
	require.Error(t, s.Initialize(cfg))
}
