// Package broker abstracts the upstream trading endpoint: a live session
// or the built-in paper simulator.
package broker

import (
	"context"
	"errors"

	"terminal-core/internal/market"
	"terminal-core/internal/order"
)

var (
	// ErrNotConnected is returned by trading calls on a disconnected broker.
	ErrNotConnected = errors.New("broker not connected")
	// ErrOrderNotFound is returned when a ticket is unknown upstream.
	ErrOrderNotFound = errors.New("order not found")
)

// AccountInfo is the broker-side account snapshot.
type AccountInfo struct {
	Balance     float64
	Equity      float64
	Margin      float64
	FreeMargin  float64
	MarginLevel float64
	Currency    string
}

// Request is a broker-bound order request, already validated and sized.
type Request struct {
	ClientID   string
	Symbol     string
	Side       order.Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// Broker is the trading endpoint contract. Implementations must be safe
// for concurrent use: the engine serializes trading calls, but the
// reconciler reads the open book from its own goroutine.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	PlaceOrder(ctx context.Context, req Request) (order.Order, error)
	ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	CloseOrder(ctx context.Context, ticket int64, price float64) (order.Order, error)
	CancelOrder(ctx context.Context, ticket int64) error

	OpenOrders() []order.Order
	OrderHistory(limit int) []order.Order
	AccountInfo() (AccountInfo, error)
}

// QuoteSource is anything that can answer the current quote for a symbol.
// The market pipeline satisfies it.
type QuoteSource interface {
	Quote(symbol string) (market.Quote, bool)
}
