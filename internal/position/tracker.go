// Package position keeps the terminal-side ledger of open positions and
// runs the protective checks the upstream may be too slow to enforce:
// tick-level and bar-level stop loss / take profit nets plus trailing
// stop maintenance.
package position

import (
	"log"
	"math"
	"sync"

	"terminal-core/internal/events"
	"terminal-core/internal/market"
	"terminal-core/internal/order"
)

// CloseReason tags why the tracker asked for a close.
type CloseReason string

const (
	ReasonSLHit      CloseReason = "SL_HIT"
	ReasonTPHit      CloseReason = "TP_HIT"
	ReasonSLHitBar   CloseReason = "SL_HIT_BAR"
	ReasonTPHitBar   CloseReason = "TP_HIT_BAR"
	ReasonSignal     CloseReason = "SIGNAL"
	ReasonManual     CloseReason = "MANUAL"
	ReasonReconciled CloseReason = "RECONCILED"
)

// ClosedTrade pairs a closed order with the reason it left the ledger. It
// is the payload of position-closed events.
type ClosedTrade struct {
	Order  order.Order
	Reason CloseReason
}

// CloseInstruction asks the execution layer to close a ticket at a price.
type CloseInstruction struct {
	Ticket int64
	Symbol string
	Price  float64
	Reason CloseReason
}

// StopUpdate asks the execution layer to move a ticket's stop loss.
type StopUpdate struct {
	Ticket  int64
	Symbol  string
	NewStop float64
}

// Position is an open order plus its trailing state.
type Position struct {
	Order        order.Order
	Trailing     bool
	TrailingPips float64
	// BestPrice is the most favorable close-side price seen since open.
	BestPrice float64
}

// Statistics aggregates the closed-trade record.
type Statistics struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	NetProfit    float64 `json:"net_profit"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
	OpenCount    int     `json:"open_count"`
}

// Tracker is the position ledger. Closing is idempotent: a ticket leaves
// the ledger exactly once no matter how many nets fire for it.
type Tracker struct {
	mutex     sync.RWMutex
	bus       *events.Bus
	positions map[int64]*Position
	stats     Statistics
}

// NewTracker builds an empty ledger.
func NewTracker(bus *events.Bus) *Tracker {
	return &Tracker{
		bus:       bus,
		positions: make(map[int64]*Position),
	}
}

// Track adds a filled order to the ledger.
func (t *Tracker) Track(o order.Order, trailing bool, trailingPips float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.positions[o.Ticket]; exists {
		return
	}
	t.positions[o.Ticket] = &Position{
		Order:        o,
		Trailing:     trailing && trailingPips > 0,
		TrailingPips: trailingPips,
		BestPrice:    o.OpenPrice,
	}
	if t.bus != nil {
		t.bus.Publish(events.EventPositionOpened, o)
	}
	log.Printf("position: tracking ticket %d %s %s %.2f @ %.5f", o.Ticket, o.Side, o.Symbol, o.Volume, o.OpenPrice)
}

// MarkClosed removes a ticket from the ledger and books its result.
// It returns false when the ticket is unknown or already closed, which
// makes double closes harmless.
func (t *Tracker) MarkClosed(o order.Order, reason CloseReason) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.positions[o.Ticket]; !exists {
		return false
	}
	delete(t.positions, o.Ticket)

	profit := o.Profit(o.ClosePrice)
	t.stats.TotalTrades++
	t.stats.NetProfit += profit
	if profit >= 0 {
		t.stats.Wins++
		t.stats.GrossProfit += profit
		if profit > t.stats.LargestWin {
			t.stats.LargestWin = profit
		}
	} else {
		t.stats.Losses++
		t.stats.GrossLoss += -profit
		if -profit > t.stats.LargestLoss {
			t.stats.LargestLoss = -profit
		}
	}

	if t.bus != nil {
		t.bus.Publish(events.EventPositionClosed, ClosedTrade{Order: o, Reason: reason})
	}
	log.Printf("position: closed ticket %d (%s), profit %.2f", o.Ticket, reason, profit)
	return true
}

// Get returns the tracked position for a ticket.
func (t *Tracker) Get(ticket int64) (Position, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	p, ok := t.positions[ticket]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Open returns a snapshot of all tracked positions.
func (t *Tracker) Open() []Position {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

// OpenForSymbol returns tracked positions on one symbol.
func (t *Tracker) OpenForSymbol(symbol string) []Position {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	var out []Position
	for _, p := range t.positions {
		if p.Order.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out
}

// Stats returns the closed-trade aggregate plus the live open count.
func (t *Tracker) Stats() Statistics {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	s := t.stats
	s.OpenCount = len(t.positions)
	if s.TotalTrades > 0 {
		s.WinRate = round2(float64(s.Wins) / float64(s.TotalTrades) * 100)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = round2(s.GrossProfit / s.GrossLoss)
	}
	s.NetProfit = round2(s.NetProfit)
	s.GrossProfit = round2(s.GrossProfit)
	s.GrossLoss = round2(s.GrossLoss)
	return s
}

// CheckTick runs the tick-level protective net for one symbol. It returns
// close instructions for positions whose stop loss or take profit is hit
// at the current quote, and stop updates for trailing positions whose
// stop can ratchet. A position that triggers a close is never also
// trailed on the same tick.
func (t *Tracker) CheckTick(q market.Quote) ([]CloseInstruction, []StopUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var closes []CloseInstruction
	var updates []StopUpdate

	for _, p := range t.positions {
		if p.Order.Symbol != q.Name && p.Order.Symbol != q.DisplayName {
			continue
		}

		closePrice := closeSidePrice(p.Order.Side, q)
		if closePrice <= 0 {
			continue
		}

		if reason, hit := hitAt(p.Order, closePrice); hit {
			closes = append(closes, CloseInstruction{
				Ticket: p.Order.Ticket,
				Symbol: p.Order.Symbol,
				Price:  closePrice,
				Reason: reason,
			})
			continue
		}

		if p.Trailing {
			if u, ok := t.trail(p, closePrice); ok {
				updates = append(updates, u)
			}
		}
	}
	return closes, updates
}

// CheckBar runs the bar-level net: a sealed candle whose range swept a
// stop or target means the tick net missed it (gap, feed hiccup), so the
// position is closed at the protective price itself.
func (t *Tracker) CheckBar(symbol string, c market.Candle) []CloseInstruction {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var closes []CloseInstruction
	for _, p := range t.positions {
		if p.Order.Symbol != symbol {
			continue
		}
		o := p.Order
		if o.Side.IsBuy() {
			switch {
			case o.StopLoss > 0 && c.Low <= o.StopLoss:
				closes = append(closes, CloseInstruction{o.Ticket, o.Symbol, o.StopLoss, ReasonSLHitBar})
			case o.TakeProfit > 0 && c.High >= o.TakeProfit:
				closes = append(closes, CloseInstruction{o.Ticket, o.Symbol, o.TakeProfit, ReasonTPHitBar})
			}
		} else {
			switch {
			case o.StopLoss > 0 && c.High >= o.StopLoss:
				closes = append(closes, CloseInstruction{o.Ticket, o.Symbol, o.StopLoss, ReasonSLHitBar})
			case o.TakeProfit > 0 && c.Low <= o.TakeProfit:
				closes = append(closes, CloseInstruction{o.Ticket, o.Symbol, o.TakeProfit, ReasonTPHitBar})
			}
		}
	}
	return closes
}

// ApplyStop records a broker-confirmed stop move on the tracked copy.
func (t *Tracker) ApplyStop(ticket int64, newStop float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if p, ok := t.positions[ticket]; ok {
		p.Order.StopLoss = newStop
	}
}

// trail ratchets the best price and proposes a stop move when the new
// stop improves on the current one. The stop only ever tightens.
func (t *Tracker) trail(p *Position, price float64) (StopUpdate, bool) {
	o := &p.Order
	dist := p.TrailingPips * order.PipUnit

	if o.Side.IsBuy() {
		if price <= p.BestPrice {
			return StopUpdate{}, false
		}
		p.BestPrice = price
		newStop := round5(price - dist)
		if newStop <= o.StopLoss {
			return StopUpdate{}, false
		}
		o.StopLoss = newStop
		t.publishTrail(o, newStop)
		return StopUpdate{Ticket: o.Ticket, Symbol: o.Symbol, NewStop: newStop}, true
	}

	if price >= p.BestPrice {
		return StopUpdate{}, false
	}
	p.BestPrice = price
	newStop := round5(price + dist)
	if o.StopLoss > 0 && newStop >= o.StopLoss {
		return StopUpdate{}, false
	}
	o.StopLoss = newStop
	t.publishTrail(o, newStop)
	return StopUpdate{Ticket: o.Ticket, Symbol: o.Symbol, NewStop: newStop}, true
}

func (t *Tracker) publishTrail(o *order.Order, newStop float64) {
	if t.bus != nil {
		t.bus.Publish(events.EventTrailingStopUpdated, events.TrailingStopPayload{
			Ticket:  o.Ticket,
			NewStop: newStop,
			Symbol:  o.Symbol,
		})
	}
	log.Printf("position: trailing stop on ticket %d moved to %.5f", o.Ticket, newStop)
}

// closeSidePrice is the price a close would execute at: bid for longs,
// ask for shorts, falling back to last.
func closeSidePrice(side order.Side, q market.Quote) float64 {
	if side.IsBuy() {
		if q.Bid > 0 {
			return q.Bid
		}
	} else if q.Ask > 0 {
		return q.Ask
	}
	return q.Last
}

// hitAt reports whether the protective levels trigger at a close-side price.
func hitAt(o order.Order, price float64) (CloseReason, bool) {
	if o.Side.IsBuy() {
		if o.StopLoss > 0 && price <= o.StopLoss {
			return ReasonSLHit, true
		}
		if o.TakeProfit > 0 && price >= o.TakeProfit {
			return ReasonTPHit, true
		}
		return "", false
	}
	if o.StopLoss > 0 && price >= o.StopLoss {
		return ReasonSLHit, true
	}
	if o.TakeProfit > 0 && price <= o.TakeProfit {
		return ReasonTPHit, true
	}
	return "", false
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round5(v float64) float64 { return math.Round(v*100000) / 100000 }
