package strategy

import (
	"fmt"
	"log"
	"math"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/market"
	"terminal-core/internal/order"
)

// hooks are the strategy-specific callbacks a concrete kind plugs into the
// shared lifecycle.
type hooks interface {
	onInit() error
	onStart()
	onStop()
	handleTick(q market.Quote) error
	handleBar(c market.Candle) error
}

// orderObserver is an optional extension for kinds that react to their own
// order updates beyond the bookkeeping the base already does.
type orderObserver interface {
	handleOrderUpdate(o order.Order)
}

// Deps are the shared services every strategy receives at construction.
type Deps struct {
	Bus *events.Bus
	// Balance reports the live account balance for the daily-loss gate.
	Balance func() float64
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Base carries the lifecycle state machine shared by all strategy kinds:
// uninitialized -> stopped <-> running <-> paused, with error forcing a
// pause. Concrete kinds embed *Base and implement hooks.
type Base struct {
	name  string
	deps  Deps
	hooks hooks

	cfg         Config
	initialized bool
	running     bool
	paused      bool

	state        State
	tradesToday  int
	dailyProfit  float64
	openTickets  map[int64]struct{}
	lastBarStart time.Time // bar currently being processed
	lastSignalAt time.Time // bar start of the last emitted signal

	// sink receives emitted signals synchronously; set by the manager.
	sink func(Signal)
}

func newBase(name string, deps Deps, h hooks) *Base {
	return &Base{
		name:        name,
		deps:        deps,
		hooks:       h,
		openTickets: make(map[int64]struct{}),
		state:       State{Name: name, Status: StatusUninitialized},
	}
}

func (b *Base) base() *Base { return b }

// Name returns the registered strategy name.
func (b *Base) Name() string { return b.name }

// Config returns the bound configuration.
func (b *Base) Config() Config { return b.cfg }

// State returns a snapshot of the observable state.
func (b *Base) State() State {
	s := b.state
	s.OpenPositions = len(b.openTickets)
	return s
}

// Initialize binds a configuration and runs the kind-specific setup hook.
// It may be called again to reconfigure, provided the caller stopped the
// strategy first.
func (b *Base) Initialize(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.cfg = cfg
	b.state.Symbol = cfg.Symbol
	b.state.Timeframe = string(cfg.Timeframe)

	if err := b.hooks.onInit(); err != nil {
		return fmt.Errorf("%s: init: %w", b.name, err)
	}

	b.initialized = true
	if b.state.Status == StatusUninitialized {
		b.state.Status = StatusStopped
	}
	log.Printf("%s: initialized for %s %s", b.name, cfg.Symbol, cfg.Timeframe)
	return nil
}

// Start moves the strategy to running. Starting an already-running strategy
// warns and is a no-op; starting before Initialize fails.
func (b *Base) Start() error {
	if !b.initialized {
		return fmt.Errorf("%s: not initialized", b.name)
	}
	if b.running {
		log.Printf("%s: already running", b.name)
		return nil
	}

	b.running = true
	b.paused = false
	b.state.Status = StatusRunning
	b.state.LastError = ""

	b.rolloverIfNewDay()
	if b.state.StartedTime.IsZero() {
		b.state.StartedTime = b.deps.now()
	}

	b.hooks.onStart()
	b.touch()
	b.publishState()
	log.Printf("%s: started on %s %s", b.name, b.cfg.Symbol, b.cfg.Timeframe)
	return nil
}

// Stop is valid from any initialized state and always lands on stopped.
func (b *Base) Stop() {
	if !b.running && b.state.Status == StatusStopped {
		return
	}
	b.running = false
	b.paused = false
	b.state.Status = StatusStopped

	b.hooks.onStop()
	b.touch()
	b.publishState()
	log.Printf("%s: stopped", b.name)
}

// Pause suspends tick/bar delivery without losing state.
func (b *Base) Pause() {
	if !b.running || b.paused {
		return
	}
	b.paused = true
	b.state.Status = StatusPaused
	b.touch()
	b.publishState()
	log.Printf("%s: paused", b.name)
}

// Resume lifts a pause.
func (b *Base) Resume() {
	if !b.running || !b.paused {
		return
	}
	b.paused = false
	b.state.Status = StatusRunning
	b.touch()
	b.publishState()
	log.Printf("%s: resumed", b.name)
}

// OnTick gates and forwards a tick to the kind-specific handler.
func (b *Base) OnTick(q market.Quote) error {
	if ok, _ := b.canTrade(); !ok {
		return nil
	}
	if b.cfg.MaxSpreadPips > 0 && q.Spread() > b.cfg.MaxSpreadPips {
		return nil
	}
	b.touch()
	return b.hooks.handleTick(q)
}

// OnBar gates and forwards a sealed candle to the kind-specific handler.
// Bars of other timeframes than the configured one are ignored.
func (b *Base) OnBar(tf market.Timeframe, c market.Candle) error {
	if tf != b.cfg.Timeframe {
		return nil
	}
	if ok, _ := b.canTrade(); !ok {
		return nil
	}
	b.rolloverIfNewDay()
	b.lastBarStart = c.Timestamp
	b.touch()
	return b.hooks.handleBar(c)
}

// OnOrderUpdate maintains the strategy's open-ticket set and statistics
// from order lifecycle transitions, then forwards to the kind if it cares.
func (b *Base) OnOrderUpdate(o order.Order) {
	switch o.Status {
	case order.StatusClosed:
		if _, mine := b.openTickets[o.Ticket]; mine {
			delete(b.openTickets, o.Ticket)

			profit := o.Profit(o.ClosePrice)
			b.state.TotalTrades++
			b.state.Profit += profit
			b.dailyProfit += profit
			b.tradesToday++
			if profit > 0 {
				b.state.WinningTrades++
			}
			log.Printf("%s: order %d closed, profit %.2f", b.name, o.Ticket, profit)
		}
	case order.StatusActive:
		b.openTickets[o.Ticket] = struct{}{}
	}
	b.touch()
	b.publishState()

	if obs, ok := b.hooks.(orderObserver); ok {
		obs.handleOrderUpdate(o)
	}
}

// MarkError records a handler failure and forces a pause, per the policy
// that one misbehaving strategy must never stop the others.
func (b *Base) MarkError(msg string) {
	b.state.LastError = msg
	b.state.Status = StatusError
	if b.deps.Bus != nil {
		b.deps.Bus.Publish(events.EventStrategyError, events.StrategyErrorPayload{Name: b.name, Message: msg})
	}
	if b.running && !b.paused {
		b.paused = true
		b.state.Status = StatusPaused
	}
	b.publishState()
	log.Printf("%s: error: %s", b.name, msg)
}

// canTrade is the admission gate run before every handler delegation. It
// returns the reason when trading is not allowed instead of panicking or
// erroring, so callers can simply skip the event.
func (b *Base) canTrade() (bool, string) {
	if !b.running || b.paused {
		return false, "not running"
	}

	if b.cfg.EnableTimeFilter {
		h := b.deps.now().Hour()
		if h < b.cfg.TradingStartHour || h >= b.cfg.TradingEndHour {
			return false, "outside trading hours"
		}
	}

	if b.dailyProfit < 0 && b.deps.Balance != nil {
		if bal := b.deps.Balance(); bal > 0 {
			lossPct := math.Abs(b.dailyProfit/bal) * 100
			if lossPct >= b.cfg.MaxDailyLossPct {
				b.MarkError(fmt.Sprintf("daily loss limit reached: %.2f%%", lossPct))
				return false, "daily loss limit"
			}
		}
	}

	if len(b.openTickets) >= b.cfg.MaxConcurrentPositions {
		return false, "max concurrent positions"
	}

	return true, "OK"
}

// generateSignal constructs and emits a signal. At most one signal is
// emitted per bar: a second call during the same bar is debounced.
func (b *Base) generateSignal(t SignalType, price, sl, tp float64, reason string, confidence float64) {
	if !b.lastBarStart.IsZero() && b.lastBarStart.Equal(b.lastSignalAt) {
		log.Printf("%s: signal for bar %v already emitted, debounced", b.name, b.lastBarStart)
		return
	}

	sig := Signal{
		Strategy:   b.name,
		Symbol:     b.cfg.Symbol,
		Type:       t,
		Timestamp:  b.deps.now(),
		Price:      price,
		Volume:     b.cfg.LotSize,
		StopLoss:   sl,
		TakeProfit: tp,
		Reason:     reason,
		Confidence: confidence,
	}

	b.lastSignalAt = b.lastBarStart
	b.state.LastSignal = &sig
	if b.deps.Bus != nil {
		b.deps.Bus.Publish(events.EventSignalGenerated, sig)
	}
	if b.sink != nil {
		b.sink(sig)
	}
	log.Printf("%s: %s signal at %.5f - %s", b.name, t, price, reason)
}

// stopLossPrice and takeProfitPrice express pip distances from the config
// as prices for the given direction.
func (b *Base) stopLossPrice(entry float64, isBuy bool) float64 {
	if b.cfg.StopLossPips <= 0 {
		return 0
	}
	if isBuy {
		return entry - b.cfg.StopLossPips*order.PipUnit
	}
	return entry + b.cfg.StopLossPips*order.PipUnit
}

func (b *Base) takeProfitPrice(entry float64, isBuy bool) float64 {
	pips := b.cfg.TakeProfitPips
	if pips <= 0 {
		pips = b.cfg.StopLossPips * 2
	}
	if pips <= 0 {
		return 0
	}
	if isBuy {
		return entry + pips*order.PipUnit
	}
	return entry - pips*order.PipUnit
}

func (b *Base) rolloverIfNewDay() {
	if b.state.StartedTime.IsZero() {
		return
	}
	now := b.deps.now()
	y1, m1, d1 := b.state.StartedTime.Date()
	y2, m2, d2 := now.Date()
	if y2 > y1 || (y2 == y1 && (m2 > m1 || (m2 == m1 && d2 > d1))) {
		b.tradesToday = 0
		b.dailyProfit = 0
		b.state.StartedTime = now
		log.Printf("%s: new trading day, counters reset", b.name)
	}
}

// touch stamps activity. State events for the UI are published on
// lifecycle transitions only, never per tick.
func (b *Base) touch() {
	b.state.LastUpdate = b.deps.now()
}

func (b *Base) publishState() {
	if b.deps.Bus != nil {
		b.deps.Bus.Publish(events.EventStrategyUpdated, b.State())
	}
}
