// Package engine runs the terminal's single event loop. Every quote, bar,
// signal and control command is processed on one goroutine, so strategies
// and the position ledger never see concurrent access and event order is
// deterministic: bars close before the tick that sealed them is delivered.
package engine

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/execution"
	"terminal-core/internal/market"
	"terminal-core/internal/monitor"
	"terminal-core/internal/order"
	"terminal-core/internal/position"
	"terminal-core/internal/risk"
	"terminal-core/internal/strategy"
	"terminal-core/pkg/symbols"
)

// ErrStopped is returned by commands submitted after shutdown.
var ErrStopped = errors.New("engine stopped")

const (
	quoteQueueSize         = 4096
	accountRefreshInterval = 5 * time.Second
)

// pendingSignal pairs a signal with its strategy's config at emission time.
type pendingSignal struct {
	sig strategy.Signal
	cfg strategy.Config
}

// Engine wires the market pipeline, strategy manager, position tracker and
// execution service together under one loop.
type Engine struct {
	bus        *events.Bus
	pipeline   *market.Pipeline
	strategies *strategy.Manager
	exec       *execution.Service
	tracker    *position.Tracker
	riskMgr    *risk.Manager
	metrics    *monitor.SystemMetrics

	quotes chan market.Quote
	ctrl   chan func()
	done   chan struct{}

	// signals emitted during routing of the current event; drained after
	// each quote so execution sees a consistent ledger.
	signals []pendingSignal

	dropped atomic.Int64
	started time.Time
}

// Options carries the collaborating services.
type Options struct {
	Bus        *events.Bus
	Pipeline   *market.Pipeline
	Exec       *execution.Service
	Tracker    *position.Tracker
	Risk       *risk.Manager
	Normalizer *symbols.Normalizer
	Deps       strategy.Deps
	Metrics    *monitor.SystemMetrics // optional

	// MaxStrategies caps concurrently running strategies; zero keeps the
	// manager's default.
	MaxStrategies int
}

// New builds the engine and its strategy manager. The manager is created
// here so signal emission and order routing both land back on the loop.
func New(opts Options) *Engine {
	e := &Engine{
		bus:      opts.Bus,
		pipeline: opts.Pipeline,
		exec:     opts.Exec,
		tracker:  opts.Tracker,
		riskMgr:  opts.Risk,
		metrics:  opts.Metrics,
		quotes:   make(chan market.Quote, quoteQueueSize),
		ctrl:     make(chan func(), 64),
		done:     make(chan struct{}),
	}
	e.strategies = strategy.NewManager(opts.Deps, opts.Normalizer, e.collect)
	if opts.MaxStrategies > 0 {
		e.strategies.SetMaxRunning(opts.MaxStrategies)
	}
	e.exec.SetOrderCallback(e.routeOrderUpdate)
	return e
}

// Strategies exposes the registry for roster loading before Run starts.
func (e *Engine) Strategies() *strategy.Manager { return e.strategies }

// OnQuote enqueues a quote for the loop. It never blocks: when the queue
// is full the quote is dropped and counted, because a stale tick is worth
// less than a responsive loop.
func (e *Engine) OnQuote(q market.Quote) {
	select {
	case e.quotes <- q:
	default:
		if n := e.dropped.Add(1); n%1000 == 1 {
			log.Printf("engine: quote queue full, %d dropped so far", n)
		}
	}
}

// Run processes events until the context is cancelled. It owns all state
// mutation; nothing else may touch the strategies or the ledger directly.
func (e *Engine) Run(ctx context.Context) {
	e.started = time.Now()
	defer close(e.done)

	account := time.NewTicker(accountRefreshInterval)
	defer account.Stop()

	log.Printf("engine: event loop started")
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case fn := <-e.ctrl:
			fn()
		case q := <-e.quotes:
			e.handleQuote(ctx, q)
		case <-account.C:
			e.refreshAccount()
		}
	}
}

// Do runs fn on the event loop and waits for its result. All command and
// query access from other goroutines goes through here.
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.ctrl <- func() { reply <- fn() }:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleQuote is one full turn of the loop: ingest, deliver sealed bars,
// run the protective nets, deliver the tick, then execute whatever the
// strategies asked for.
func (e *Engine) handleQuote(ctx context.Context, q market.Quote) {
	var timer *monitor.Timer
	if e.metrics != nil {
		timer = monitor.NewTimer(e.metrics.TickLatency)
		e.metrics.IncrementTicks()
	}

	sealed := e.pipeline.IngestTick(q)
	if e.metrics != nil {
		e.metrics.AddCandlesSealed(len(sealed))
	}

	// Bar-close work happens before the sealing tick is seen.
	for _, sc := range sealed {
		for _, ci := range e.tracker.CheckBar(sc.Symbol, sc.Candle) {
			if err := e.exec.ClosePosition(ctx, ci.Ticket, ci.Price, ci.Reason); err != nil {
				log.Printf("engine: bar net close: %v", err)
			}
		}
		e.strategies.RouteBar(sc.Symbol, sc.Timeframe, sc.Candle)
	}

	closes, stops := e.tracker.CheckTick(q)
	for _, ci := range closes {
		if err := e.exec.ClosePosition(ctx, ci.Ticket, ci.Price, ci.Reason); err != nil {
			log.Printf("engine: tick net close: %v", err)
		}
	}
	for _, su := range stops {
		if err := e.exec.ModifyStops(ctx, su.Ticket, su.NewStop, e.takeProfitOf(su.Ticket)); err != nil {
			log.Printf("engine: trailing update: %v", err)
		}
	}

	e.strategies.RouteTick(q)
	e.drainSignals(ctx)

	if timer != nil {
		timer.Stop()
	}
}

// collect is the strategy signal sink. It runs on the loop goroutine,
// inside RouteTick or RouteBar, so appending is safe.
func (e *Engine) collect(sig strategy.Signal) {
	s, ok := e.strategies.Get(sig.Strategy)
	if !ok {
		return
	}
	e.signals = append(e.signals, pendingSignal{sig: sig, cfg: s.Config()})
}

func (e *Engine) drainSignals(ctx context.Context) {
	if len(e.signals) == 0 {
		return
	}
	pending := e.signals
	e.signals = e.signals[:0]

	e.riskMgr.ResetDailyLossIfNewDay(time.Now())
	for _, p := range pending {
		var timer *monitor.Timer
		if e.metrics != nil {
			e.metrics.IncrementSignals()
			timer = monitor.NewTimer(e.metrics.OrderLatency)
		}
		if err := e.exec.HandleSignal(ctx, p.sig, p.cfg); err != nil {
			log.Printf("engine: signal from %s: %v", p.sig.Strategy, err)
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (e *Engine) routeOrderUpdate(o order.Order) {
	if e.metrics != nil && o.IsOpen() {
		e.metrics.IncrementOrders()
	}
	e.strategies.RouteOrderUpdate(o)
}

func (e *Engine) takeProfitOf(ticket int64) float64 {
	if p, ok := e.tracker.Get(ticket); ok {
		return p.Order.TakeProfit
	}
	return 0
}

// refreshAccount mirrors the broker account into the risk manager and the
// event feed.
func (e *Engine) refreshAccount() {
	info, err := e.exec.Broker().AccountInfo()
	if err != nil {
		log.Printf("engine: account refresh: %v", err)
		return
	}
	e.riskMgr.UpdateAccount(info.Balance, info.Equity)
	if e.bus != nil {
		e.bus.Publish(events.EventAccountUpdated, events.AccountPayload{
			Balance:     info.Balance,
			Equity:      info.Equity,
			Margin:      info.Margin,
			FreeMargin:  info.FreeMargin,
			MarginLevel: info.MarginLevel,
		})
	}
}

func (e *Engine) shutdown() {
	e.strategies.StopAll()
	log.Printf("engine: event loop stopped (%d quotes dropped)", e.dropped.Load())
}

// Uptime reports how long the loop has been running.
func (e *Engine) Uptime() time.Duration {
	if e.started.IsZero() {
		return 0
	}
	return time.Since(e.started)
}
