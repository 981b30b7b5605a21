package strategy

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"terminal-core/internal/events"
	"terminal-core/internal/market"
	"terminal-core/internal/order"
	"terminal-core/pkg/symbols"
)

// DefaultMaxRunning is the running-strategy cap applied when no explicit
// limit is configured.
const DefaultMaxRunning = 5

// Manager owns the strategy registry and routes market and order events to
// the strategies that care about them. Handler panics are contained per
// strategy: the offender is marked errored and paused, the rest keep
// receiving events.
type Manager struct {
	mutex      sync.RWMutex
	strategies map[string]Strategy
	deps       Deps
	bus        *events.Bus
	normalizer *symbols.Normalizer
	sink       func(Signal)
	maxRunning int
}

// NewManager builds an empty registry. sink receives every emitted signal;
// it is invoked synchronously on the routing goroutine.
func NewManager(deps Deps, normalizer *symbols.Normalizer, sink func(Signal)) *Manager {
	return &Manager{
		strategies: make(map[string]Strategy),
		deps:       deps,
		bus:        deps.Bus,
		normalizer: normalizer,
		sink:       sink,
		maxRunning: DefaultMaxRunning,
	}
}

// SetMaxRunning changes the running-strategy cap. Values below one fall
// back to the default. Already-running strategies are not stopped when
// the cap shrinks; the new limit applies to the next Start.
func (m *Manager) SetMaxRunning(n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if n < 1 {
		n = DefaultMaxRunning
	}
	m.maxRunning = n
}

// Register creates, configures and stores a strategy from its config.
// Names are unique; registering an existing name fails.
func (m *Manager) Register(cfg Config) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.strategies[cfg.Name]; exists {
		return fmt.Errorf("strategy %q already registered", cfg.Name)
	}

	s, err := New(cfg.Kind, cfg.Name, m.deps)
	if err != nil {
		return err
	}
	if err := s.Initialize(cfg); err != nil {
		return err
	}
	if b := baseOf(s); b != nil {
		b.sink = m.sink
	}

	m.strategies[cfg.Name] = s
	if m.bus != nil {
		m.bus.Publish(events.EventStrategyRegistered, s.State())
	}
	log.Printf("manager: registered %s (%s) on %s", cfg.Name, cfg.Kind, cfg.Symbol)
	return nil
}

// Unregister removes a strategy, stopping it first if needed.
func (m *Manager) Unregister(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %q not found", name)
	}
	s.Stop()
	delete(m.strategies, name)
	if m.bus != nil {
		m.bus.Publish(events.EventStrategyUnregistered, name)
	}
	log.Printf("manager: unregistered %s", name)
	return nil
}

// Start launches a strategy, enforcing the running cap.
func (m *Manager) Start(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %q not found", name)
	}
	if s.State().Status == StatusRunning {
		return nil
	}
	if n := m.runningLocked(); n >= m.maxRunning {
		return fmt.Errorf("running strategy limit reached (%d)", m.maxRunning)
	}
	if err := s.Start(); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(events.EventStrategyStarted, name)
	}
	return nil
}

// Stop halts a strategy.
func (m *Manager) Stop(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %q not found", name)
	}
	s.Stop()
	if m.bus != nil {
		m.bus.Publish(events.EventStrategyStopped, name)
	}
	return nil
}

// Pause suspends a running strategy.
func (m *Manager) Pause(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %q not found", name)
	}
	s.Pause()
	if m.bus != nil {
		m.bus.Publish(events.EventStrategyPaused, name)
	}
	return nil
}

// Resume lifts a pause. A strategy paused by an error resumes cleanly;
// the recorded error stays visible in its state until the next start.
func (m *Manager) Resume(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.strategies[name]
	if !ok {
		return fmt.Errorf("strategy %q not found", name)
	}
	s.Resume()
	if m.bus != nil {
		m.bus.Publish(events.EventStrategyResumed, name)
	}
	return nil
}

// StopAll halts every strategy, for shutdown.
func (m *Manager) StopAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, s := range m.strategies {
		s.Stop()
	}
}

// Get returns a registered strategy by name.
func (m *Manager) Get(name string) (Strategy, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.strategies[name]
	return s, ok
}

// States returns a snapshot of every strategy's state, sorted by name.
func (m *Manager) States() []State {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]State, 0, len(m.strategies))
	for _, s := range m.strategies {
		out = append(out, s.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Running reports how many strategies are currently running.
func (m *Manager) Running() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.runningLocked()
}

func (m *Manager) runningLocked() int {
	n := 0
	for _, s := range m.strategies {
		if s.State().Status == StatusRunning {
			n++
		}
	}
	return n
}

// RouteTick delivers a quote to every strategy bound to its symbol.
// Quotes carry the pipe-form name; configs may use either spelling.
func (m *Manager) RouteTick(q market.Quote) {
	for _, s := range m.snapshot() {
		if !m.symbolMatch(s.Config().Symbol, q.Name, q.DisplayName) {
			continue
		}
		m.safeCall(s, func() error { return s.OnTick(q) })
	}
}

// RouteBar delivers a sealed candle. Timeframe filtering happens inside
// each strategy, so every symbol match gets the bar.
func (m *Manager) RouteBar(symbol string, tf market.Timeframe, c market.Candle) {
	for _, s := range m.snapshot() {
		if !m.symbolMatch(s.Config().Symbol, symbol, "") {
			continue
		}
		m.safeCall(s, func() error { return s.OnBar(tf, c) })
	}
}

// RouteOrderUpdate delivers an order transition to the strategies that
// care about it: the owner named by the comment prefix the execution
// layer stamps, and any strategy bound to the order's symbol. The symbol
// fallback is what lets manual closes and broker-originated fills, which
// carry no tag, reach the strategy trading that instrument.
func (m *Manager) RouteOrderUpdate(o order.Order) {
	for _, s := range m.snapshot() {
		if !ownsOrder(s.Name(), o.Comment) &&
			!(o.Symbol != "" && m.symbolMatch(s.Config().Symbol, o.Symbol, "")) {
			continue
		}
		m.safeCall(s, func() error { s.OnOrderUpdate(o); return nil })
	}
}

func (m *Manager) snapshot() []Strategy {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]Strategy, 0, len(m.strategies))
	for _, s := range m.strategies {
		out = append(out, s)
	}
	return out
}

func (m *Manager) symbolMatch(configured, name, displayName string) bool {
	if configured == name || (displayName != "" && configured == displayName) {
		return true
	}
	if m.normalizer == nil {
		return false
	}
	if m.normalizer.Match(configured, name) {
		return true
	}
	return displayName != "" && m.normalizer.Match(configured, displayName)
}

// safeCall runs a handler, converting panics and errors into a per-strategy
// error state instead of letting them escape the routing loop.
func (m *Manager) safeCall(s Strategy, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("manager: %s panicked: %v", s.Name(), r)
			if b := baseOf(s); b != nil {
				b.MarkError(fmt.Sprintf("panic: %v", r))
			}
		}
	}()
	if err := fn(); err != nil {
		log.Printf("manager: %s handler error: %v", s.Name(), err)
		if b := baseOf(s); b != nil {
			b.MarkError(err.Error())
		}
	}
}

// ownsOrder matches the "name:" prefix execution stamps on comments.
func ownsOrder(name, comment string) bool {
	return comment == name || strings.HasPrefix(comment, name+":")
}

func baseOf(s Strategy) *Base {
	type based interface{ base() *Base }
	if b, ok := s.(based); ok {
		return b.base()
	}
	return nil
}
