package strategy

import (
	"fmt"

	"terminal-core/internal/market"
	"terminal-core/internal/order"
)

// FixedPrice fires a single entry when the last price crosses a configured
// level, then stays quiet until that position closes. Parameters:
//
//	trigger_price float64 (required)
//	direction     string  "buy" or "sell" (default "buy")
//
// A buy triggers when price falls to or below the level; a sell when price
// rises to or above it. The strategy works on ticks, not bars.
type FixedPrice struct {
	*Base

	trigger   float64
	direction string
	inTrade   bool
}

// NewFixedPrice builds an uninitialized fixed-price entry strategy.
func NewFixedPrice(name string, deps Deps) *FixedPrice {
	s := &FixedPrice{}
	s.Base = newBase(name, deps, s)
	return s
}

func (s *FixedPrice) onInit() error {
	p := s.Config().Parameters
	s.trigger = floatParam(p, "trigger_price", 0)
	s.direction = stringParam(p, "direction", "buy")

	if s.trigger <= 0 {
		return fmt.Errorf("trigger_price must be positive")
	}
	if s.direction != "buy" && s.direction != "sell" {
		return fmt.Errorf("direction must be buy or sell, got %q", s.direction)
	}
	s.inTrade = false
	return nil
}

func (s *FixedPrice) onStart() {}
func (s *FixedPrice) onStop()  { s.inTrade = false }

func (s *FixedPrice) handleTick(q market.Quote) error {
	if s.inTrade {
		return nil
	}

	price := q.Last
	isBuy := s.direction == "buy"
	triggered := (isBuy && price <= s.trigger) || (!isBuy && price >= s.trigger)
	if !triggered {
		return nil
	}

	t := SignalBuy
	if !isBuy {
		t = SignalSell
	}
	sl := s.stopLossPrice(price, isBuy)
	tp := s.takeProfitPrice(price, isBuy)
	s.generateSignal(t, price, sl, tp,
		fmt.Sprintf("price %.5f reached trigger %.5f", price, s.trigger), 0.9)
	s.inTrade = true
	return nil
}

func (s *FixedPrice) handleBar(c market.Candle) error { return nil }

// handleOrderUpdate re-arms the trigger once the opened position closes.
func (s *FixedPrice) handleOrderUpdate(o order.Order) {
	if o.Status == order.StatusClosed && s.State().OpenPositions == 0 {
		s.inTrade = false
	}
}
