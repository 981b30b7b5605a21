// Package execution turns sized strategy signals into broker orders. It
// owns rejection reporting, placement retries, and the close/modify
// paths the protective nets drive.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"

	"terminal-core/internal/broker"
	"terminal-core/internal/events"
	"terminal-core/internal/order"
	"terminal-core/internal/position"
	"terminal-core/internal/risk"
	"terminal-core/internal/strategy"
)

const placeAttempts = 3

// Service executes signals against the active broker and keeps the
// position ledger and risk accounting in step with the results.
type Service struct {
	bus     *events.Bus
	brk     broker.Broker // active endpoint
	paper   broker.Broker
	live    broker.Broker
	isPaper bool
	tracker *position.Tracker
	risk    *risk.Manager

	// terminalID tags every order comment with the machine that placed
	// it, so fills are attributable when several terminals share a host
	// account.
	terminalID string

	// onOrder, when set, receives every order transition synchronously
	// so the engine can route it to the owning strategy.
	onOrder func(order.Order)
}

// NewService builds an execution service. The given broker is treated as
// the paper endpoint and starts active; a live endpoint may be attached
// with SetLiveBroker.
func NewService(bus *events.Bus, brk broker.Broker, tracker *position.Tracker, riskMgr *risk.Manager) *Service {
	return &Service{
		bus:        bus,
		brk:        brk,
		paper:      brk,
		isPaper:    true,
		tracker:    tracker,
		risk:       riskMgr,
		terminalID: terminalID(),
	}
}

// SetOrderCallback registers the synchronous order-transition listener.
func (s *Service) SetOrderCallback(fn func(order.Order)) { s.onOrder = fn }

// SetLiveBroker attaches the endpoint SetPaperTrading switches to when
// paper mode is turned off.
func (s *Service) SetLiveBroker(brk broker.Broker) { s.live = brk }

// SetPaperTrading toggles the active endpoint between the paper broker
// and the live one. The switch is refused while positions are open: they
// belong to the broker that filled them.
func (s *Service) SetPaperTrading(enabled bool) error {
	if enabled == s.isPaper {
		return nil
	}
	if open := len(s.tracker.Open()); open > 0 {
		return fmt.Errorf("%d positions still open on the active broker", open)
	}
	if !enabled && s.live == nil {
		return errors.New("no live broker configured")
	}
	if enabled {
		s.brk = s.paper
	} else {
		s.brk = s.live
	}
	s.isPaper = enabled
	log.Printf("execution: paper trading %v", enabled)
	return nil
}

// IsPaper reports whether orders go to the paper broker.
func (s *Service) IsPaper() bool { return s.isPaper }

// Broker returns the active broker.
func (s *Service) Broker() broker.Broker { return s.brk }

// HandleSignal validates, sizes and executes one strategy signal. Entry
// signals become broker orders; close signals unwind the strategy's open
// positions on the other side. Rejections are reported on the bus and
// returned as nil: a refused trade is an outcome, not a failure.
func (s *Service) HandleSignal(ctx context.Context, sig strategy.Signal, cfg strategy.Config) error {
	if !sig.Type.Valid() {
		s.reject(sig.Strategy, fmt.Sprintf("invalid signal type %q", sig.Type))
		return nil
	}
	if sig.Symbol == "" {
		s.reject(sig.Strategy, "signal has no symbol")
		return nil
	}
	if sig.Volume <= 0 {
		s.reject(sig.Strategy, fmt.Sprintf("signal volume %.2f is not positive", sig.Volume))
		return nil
	}

	switch sig.Type {
	case strategy.SignalCloseBuy:
		return s.closeSide(ctx, sig, order.SideBuy)
	case strategy.SignalCloseSell:
		return s.closeSide(ctx, sig, order.SideSell)
	}

	if sig.Price <= 0 {
		s.reject(sig.Strategy, "signal has no price")
		return nil
	}

	volume := s.risk.CalculatePositionSize(risk.SizingConfig{
		LotSize:       cfg.LotSize,
		RiskPercent:   cfg.RiskPercent,
		DynamicSizing: cfg.DynamicSizing,
	}, sig.Price, sig.StopLoss)

	side := order.SideBuy
	if sig.Type == strategy.SignalSell {
		side = order.SideSell
	}

	candidate := order.Order{
		Symbol:     sig.Symbol,
		Side:       side,
		Volume:     volume,
		OpenPrice:  sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
	}
	if ok, reason := s.risk.ValidateOrder(&candidate, sig.Strategy, cfg.RiskPercent); !ok {
		s.reject(sig.Strategy, reason)
		return nil
	}

	req := broker.Request{
		ClientID:   uuid.NewString(),
		Symbol:     sig.Symbol,
		Side:       side,
		Volume:     volume,
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Comment:    fmt.Sprintf("%s:%s@%s", sig.Strategy, sig.Type, s.terminalID),
	}

	placed, err := s.placeWithRetry(ctx, req)
	if err != nil {
		s.reject(sig.Strategy, fmt.Sprintf("placement failed: %v", err))
		return fmt.Errorf("place %s %s: %w", side, sig.Symbol, err)
	}

	s.tracker.Track(placed, cfg.UseTrailingStop, cfg.TrailingStopPips)
	if s.bus != nil {
		s.bus.Publish(events.EventOrderPlaced, placed)
	}
	if s.onOrder != nil {
		s.onOrder(placed)
	}
	log.Printf("execution: %s placed %s %s %.2f @ %.5f (ticket %d)",
		sig.Strategy, side, sig.Symbol, placed.Volume, placed.OpenPrice, placed.Ticket)
	return nil
}

// ClosePosition closes one tracked ticket at the given price (zero means
// market). Closing an unknown or already-closed ticket is a no-op.
func (s *Service) ClosePosition(ctx context.Context, ticket int64, price float64, reason position.CloseReason) error {
	if _, ok := s.tracker.Get(ticket); !ok {
		return nil
	}

	closed, err := s.brk.CloseOrder(ctx, ticket, price)
	if err != nil {
		return fmt.Errorf("close ticket %d: %w", ticket, err)
	}

	if s.tracker.MarkClosed(closed, reason) {
		s.risk.UpdateDailyLoss(closed.Profit(closed.ClosePrice))
		if s.bus != nil {
			s.bus.Publish(events.EventOrderClosed, closed)
		}
		if s.onOrder != nil {
			s.onOrder(closed)
		}
	}
	return nil
}

// ModifyStops moves a ticket's protective levels at the broker and then
// on the tracked copy.
func (s *Service) ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	if err := s.brk.ModifyOrder(ctx, ticket, stopLoss, takeProfit); err != nil {
		return fmt.Errorf("modify ticket %d: %w", ticket, err)
	}
	s.tracker.ApplyStop(ticket, stopLoss)
	if s.bus != nil {
		s.bus.Publish(events.EventOrderModified, events.TrailingStopPayload{Ticket: ticket, NewStop: stopLoss})
	}
	return nil
}

// CloseAll unwinds every tracked position, for shutdown or kill switches.
func (s *Service) CloseAll(ctx context.Context, reason position.CloseReason) int {
	closed := 0
	for _, p := range s.tracker.Open() {
		if err := s.ClosePosition(ctx, p.Order.Ticket, 0, reason); err != nil {
			log.Printf("execution: close all: %v", err)
			continue
		}
		closed++
	}
	return closed
}

// closeSide closes the signalling strategy's open positions on one side
// of the signal's symbol.
func (s *Service) closeSide(ctx context.Context, sig strategy.Signal, side order.Side) error {
	prefix := sig.Strategy + ":"
	matched := 0
	for _, p := range s.tracker.OpenForSymbol(sig.Symbol) {
		if p.Order.Side.IsBuy() != side.IsBuy() {
			continue
		}
		if p.Order.Comment != sig.Strategy && !strings.HasPrefix(p.Order.Comment, prefix) {
			continue
		}
		matched++
		if err := s.ClosePosition(ctx, p.Order.Ticket, sig.Price, position.ReasonSignal); err != nil {
			return err
		}
	}
	if matched == 0 {
		log.Printf("execution: %s %s found nothing to close on %s", sig.Strategy, sig.Type, sig.Symbol)
	}
	return nil
}

// placeWithRetry tries a placement a few times before giving up. Retries
// are immediate, the quote that justified the order is already aging;
// only a dead context stops them early.
func (s *Service) placeWithRetry(ctx context.Context, req broker.Request) (order.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= placeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return order.Order{}, err
		}
		placed, err := s.brk.PlaceOrder(ctx, req)
		if err == nil {
			return placed, nil
		}
		lastErr = err
		log.Printf("execution: place attempt %d/%d failed: %v", attempt, placeAttempts, err)
	}
	return order.Order{}, lastErr
}

func (s *Service) reject(strategyName, reason string) {
	log.Printf("execution: rejected signal from %s: %s", strategyName, reason)
	if s.bus != nil {
		s.bus.Publish(events.EventOrderRejected, events.RejectionPayload{
			Strategy: strategyName,
			Reason:   reason,
		})
	}
}

// terminalID is a short stable tag for this machine. When the machine ID
// is unavailable a random tag still keeps comments unique per run.
func terminalID() string {
	id, err := machineid.ProtectedID("terminal-core")
	if err != nil {
		return uuid.NewString()[:8]
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

