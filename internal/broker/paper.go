package broker

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"terminal-core/internal/order"
)

// paperHistoryLimit bounds the closed-order ring kept in memory.
const paperHistoryLimit = 500

// Paper simulates a broker against live quotes. Fills are immediate at
// the requested price, balance moves on close, and margin is modelled as
// a flat fraction of notional.
type Paper struct {
	mutex  sync.RWMutex
	quotes QuoteSource

	connected bool
	balance   float64
	currency  string

	nextTicket atomic.Int64
	open       map[int64]order.Order
	history    []order.Order
}

// NewPaper builds a disconnected paper broker with a starting balance.
func NewPaper(quotes QuoteSource, startingBalance float64) *Paper {
	p := &Paper{
		quotes:   quotes,
		balance:  startingBalance,
		currency: "USD",
		open:     make(map[int64]order.Order),
	}
	p.nextTicket.Store(time.Now().Unix() * 1000)
	return p
}

func (p *Paper) Connect(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.connected = true
	log.Printf("paper broker: connected, balance %.2f %s", p.balance, p.currency)
	return nil
}

func (p *Paper) Disconnect() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.connected = false
	return nil
}

func (p *Paper) IsConnected() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.connected
}

func (p *Paper) PlaceOrder(ctx context.Context, req Request) (order.Order, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.connected {
		return order.Order{}, ErrNotConnected
	}

	price := req.Price
	if q, ok := p.quotes.Quote(req.Symbol); ok {
		if req.Side.IsBuy() && q.Ask > 0 {
			price = q.Ask
		} else if !req.Side.IsBuy() && q.Bid > 0 {
			price = q.Bid
		}
	}
	if price <= 0 {
		return order.Order{}, fmt.Errorf("no price available for %s", req.Symbol)
	}

	o := order.Order{
		Ticket:     p.nextTicket.Add(1),
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		OpenPrice:  price,
		OpenTime:   time.Now(),
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Status:     order.StatusActive,
		Comment:    req.Comment,
	}
	p.open[o.Ticket] = o
	log.Printf("paper broker: filled %s %s %.2f @ %.5f (ticket %d)", o.Side, o.Symbol, o.Volume, price, o.Ticket)
	return o, nil
}

func (p *Paper) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	o, ok := p.open[ticket]
	if !ok {
		return ErrOrderNotFound
	}
	o.StopLoss = stopLoss
	o.TakeProfit = takeProfit
	p.open[ticket] = o
	return nil
}

func (p *Paper) CloseOrder(ctx context.Context, ticket int64, price float64) (order.Order, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.connected {
		return order.Order{}, ErrNotConnected
	}
	o, ok := p.open[ticket]
	if !ok {
		return order.Order{}, ErrOrderNotFound
	}

	if price <= 0 {
		if q, qok := p.quotes.Quote(o.Symbol); qok {
			if o.Side.IsBuy() && q.Bid > 0 {
				price = q.Bid
			} else if !o.Side.IsBuy() && q.Ask > 0 {
				price = q.Ask
			} else {
				price = q.Last
			}
		}
	}
	if price <= 0 {
		return order.Order{}, fmt.Errorf("no close price available for %s", o.Symbol)
	}

	o.Status = order.StatusClosed
	o.ClosePrice = price
	o.CloseTime = time.Now()
	delete(p.open, ticket)

	p.balance += o.Profit(price)
	p.pushHistory(o)
	log.Printf("paper broker: closed ticket %d @ %.5f, profit %.2f, balance %.2f", ticket, price, o.Profit(price), p.balance)
	return o, nil
}

func (p *Paper) CancelOrder(ctx context.Context, ticket int64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	o, ok := p.open[ticket]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = order.StatusCancelled
	o.CloseTime = time.Now()
	delete(p.open, ticket)
	p.pushHistory(o)
	return nil
}

func (p *Paper) OpenOrders() []order.Order {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	out := make([]order.Order, 0, len(p.open))
	for _, o := range p.open {
		out = append(out, o)
	}
	return out
}

func (p *Paper) OrderHistory(limit int) []order.Order {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if limit <= 0 || limit > len(p.history) {
		limit = len(p.history)
	}
	out := make([]order.Order, limit)
	copy(out, p.history[len(p.history)-limit:])
	return out
}

func (p *Paper) AccountInfo() (AccountInfo, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	equity := p.balance
	margin := 0.0
	for _, o := range p.open {
		if q, ok := p.quotes.Quote(o.Symbol); ok && q.Last > 0 {
			equity += o.Profit(q.Last)
			margin += o.Volume * q.Last * marginFraction
		}
	}

	info := AccountInfo{
		Balance:    p.balance,
		Equity:     equity,
		Margin:     round2(margin),
		FreeMargin: round2(equity - margin),
		Currency:   p.currency,
	}
	if margin > 0 {
		info.MarginLevel = round2(equity / margin * 100)
	}
	return info, nil
}

// marginFraction approximates 100:1 leverage.
const marginFraction = 0.01

func (p *Paper) pushHistory(o order.Order) {
	p.history = append(p.history, o)
	if len(p.history) > paperHistoryLimit {
		p.history = p.history[len(p.history)-paperHistoryLimit:]
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
