package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terminal-core/internal/market"
	"terminal-core/internal/order"
	"terminal-core/pkg/symbols"
)

func managerConfig(name string) Config {
	cfg := testConfig(name)
	cfg.Name = name
	return cfg
}

func TestManagerRegisterAndDuplicate(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)
	require.NoError(t, m.Register(managerConfig("a")))
	err := m.Register(managerConfig("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = m.Register(Config{Name: "b", Kind: "martingale", Symbol: "X", Timeframe: market.TimeframeM1, LotSize: 1})
	require.Error(t, err, "unknown kinds are rejected")
}

func TestManagerRunningCap(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)
	names := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	for _, n := range names {
		require.NoError(t, m.Register(managerConfig(n)))
	}

	for _, n := range names[:DefaultMaxRunning] {
		require.NoError(t, m.Start(n))
	}
	err := m.Start("s6")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")

	// Stopping one frees a slot.
	require.NoError(t, m.Stop("s1"))
	require.NoError(t, m.Start("s6"))
	assert.Equal(t, DefaultMaxRunning, m.Running())

	// Starting an already-running strategy does not trip the cap.
	require.NoError(t, m.Start("s6"))
}

func TestManagerConfigurableRunningCap(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)
	m.SetMaxRunning(2)
	for _, n := range []string{"a1", "a2", "a3"} {
		require.NoError(t, m.Register(managerConfig(n)))
	}

	require.NoError(t, m.Start("a1"))
	require.NoError(t, m.Start("a2"))
	err := m.Start("a3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit reached (2)")

	// Raising the cap frees the third slot.
	m.SetMaxRunning(3)
	require.NoError(t, m.Start("a3"))

	// Nonsense values fall back to the default.
	m.SetMaxRunning(0)
	assert.Equal(t, 3, m.Running())
}

func TestManagerUnregisterStops(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)
	require.NoError(t, m.Register(managerConfig("gone")))
	require.NoError(t, m.Start("gone"))
	require.NoError(t, m.Unregister("gone"))
	_, ok := m.Get("gone")
	assert.False(t, ok)
	require.Error(t, m.Start("gone"))
}

func TestManagerRouteTickSymbolIdentity(t *testing.T) {
	n := symbols.NewNormalizer()
	n.Register("TSE:2885", "TSE|2885")

	m := NewManager(Deps{}, n, nil)

	colon := managerConfig("colon")
	colon.Symbol = "TSE:2885" // display form in config
	require.NoError(t, m.Register(colon))
	require.NoError(t, m.Start("colon"))

	other := managerConfig("other")
	other.Symbol = "TSE|9999"
	require.NoError(t, m.Register(other))
	require.NoError(t, m.Start("other"))

	// Both triggers fire at or below 100, so only routing decides who signals.
	m.RouteTick(market.Quote{Name: "TSE|2885", DisplayName: "TSE:2885", Last: 99.5})

	colonS, _ := m.Get("colon")
	otherS, _ := m.Get("other")
	assert.NotNil(t, colonS.State().LastSignal, "config in colon form matches a pipe-form quote")
	assert.Nil(t, otherS.State().LastSignal, "different token must not match")
}

func TestManagerPanicIsolation(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)

	boom := &panicky{}
	boom.Base = newBase("boom", Deps{}, boom)
	require.NoError(t, boom.Initialize(managerConfig("boom")))
	require.NoError(t, boom.Start())
	m.strategies["boom"] = boom

	calm := newNoop("calm", Deps{})
	require.NoError(t, calm.Initialize(managerConfig("calm")))
	require.NoError(t, calm.Start())
	m.strategies["calm"] = calm

	m.RouteTick(market.Quote{Name: "NSE|2885", Last: 100})

	assert.Equal(t, StatusPaused, boom.State().Status, "panicking strategy is paused")
	assert.Contains(t, boom.State().LastError, "panic")
	assert.Equal(t, 1, calm.ticks, "healthy strategy still receives the tick")
}

type panicky struct{ *Base }

func (p *panicky) onInit() error { return nil }
func (p *panicky) onStart()      {}
func (p *panicky) onStop()       {}

func (p *panicky) handleTick(market.Quote) error { panic("boom") }
func (p *panicky) handleBar(market.Candle) error { return nil }

func TestManagerRouteOrderUpdateByComment(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)
	require.NoError(t, m.Register(managerConfig("alpha")))
	require.NoError(t, m.Register(managerConfig("alphabet")))
	require.NoError(t, m.Start("alpha"))
	require.NoError(t, m.Start("alphabet"))

	m.RouteOrderUpdate(order.Order{Ticket: 1, Status: order.StatusActive, Comment: "alpha:entry"})

	alpha, _ := m.Get("alpha")
	alphabet, _ := m.Get("alphabet")
	assert.Equal(t, 1, alpha.State().OpenPositions)
	assert.Zero(t, alphabet.State().OpenPositions, "prefix match must not bleed into longer names")
}

func TestManagerRouteOrderUpdateBySymbol(t *testing.T) {
	m := NewManager(Deps{}, symbols.NewNormalizer(), nil)

	bound := managerConfig("bound")
	bound.Symbol = "TSE|2885"
	require.NoError(t, m.Register(bound))
	require.NoError(t, m.Start("bound"))

	elsewhere := managerConfig("elsewhere")
	elsewhere.Symbol = "TSE|9999"
	require.NoError(t, m.Register(elsewhere))
	require.NoError(t, m.Start("elsewhere"))

	// A manual close carries no strategy tag; symbol identity routes it.
	m.RouteOrderUpdate(order.Order{Ticket: 5, Symbol: "TSE|2885", Status: order.StatusActive, Comment: "manual"})

	boundS, _ := m.Get("bound")
	elsewhereS, _ := m.Get("elsewhere")
	assert.Equal(t, 1, boundS.State().OpenPositions, "untagged order reaches the symbol's strategy")
	assert.Zero(t, elsewhereS.State().OpenPositions, "other symbols stay quiet")
}

func TestManagerStatesSorted(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.Register(managerConfig(n)))
	}
	states := m.States()
	require.Len(t, states, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{states[0].Name, states[1].Name, states[2].Name})
}

func TestLoadRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	body := `strategies:
  - name: cross
    kind: ma_crossover
    symbol: "TSE|2885"
    timeframe: M5
    lot_size: 0.1
    stop_loss_pips: 40
    parameters:
      fast_period: 5
      slow_period: 20
  - name: level
    kind: fixed_price
    symbol: "TSE:2885"
    timeframe: M1
    lot_size: 0.2
    stop_loss_pips: 30
    parameters:
      trigger_price: 95.5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	r, err := LoadRoster(path)
	require.NoError(t, err)
	require.Len(t, r.Strategies, 2)
	assert.Equal(t, "cross", r.Strategies[0].Name)
	assert.Equal(t, market.TimeframeM5, r.Strategies[0].Timeframe)
	assert.Equal(t, 95.5, r.Strategies[1].Parameters["trigger_price"])

	m := NewManager(Deps{}, nil, nil)
	require.NoError(t, r.RegisterAll(m))
	assert.Len(t, m.States(), 2)
}

func TestLoadRosterRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		body string
	}{
		{"unknown kind", "strategies:\n  - name: x\n    kind: nope\n    symbol: S\n    timeframe: M1\n    lot_size: 1\n"},
		{"duplicate name", "strategies:\n  - name: x\n    kind: fixed_price\n    symbol: S\n    timeframe: M1\n    lot_size: 1\n  - name: x\n    kind: fixed_price\n    symbol: S\n    timeframe: M1\n    lot_size: 1\n"},
		{"bad timeframe", "strategies:\n  - name: x\n    kind: fixed_price\n    symbol: S\n    timeframe: M7\n    lot_size: 1\n"},
		{"missing lot size", "strategies:\n  - name: x\n    kind: fixed_price\n    symbol: S\n    timeframe: M1\n"},
	}
	for i, tc := range cases {
		path := filepath.Join(dir, tc.name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o644))
		_, err := LoadRoster(path)
		assert.Error(t, err, "case %d (%s)", i, tc.name)
	}
}

func TestManagerStopAll(t *testing.T) {
	m := NewManager(Deps{}, nil, nil)
	for _, n := range []string{"a", "b"} {
		require.NoError(t, m.Register(managerConfig(n)))
		require.NoError(t, m.Start(n))
	}
	m.StopAll()
	for _, st := range m.States() {
		assert.Equal(t, StatusStopped, st.Status)
	}
}
