package order

import (
	"math"
	"time"
)

// Pip model shared by risk sizing and P&L. A fixed 4-digit quote is assumed;
// a symbol-master driven pip size is a known simplification left out of this
// model.
const (
	PipUnit     = 0.0001 // price distance of one pip
	PipsPerUnit = 10000  // pips per unit of price difference
	PipValue    = 10.0   // account-currency value of one pip for 1.00 lots
)

// Side is the order direction, including the pending variants.
type Side string

const (
	SideBuy       Side = "buy"
	SideSell      Side = "sell"
	SideBuyLimit  Side = "buy limit"
	SideSellLimit Side = "sell limit"
	SideBuyStop   Side = "buy stop"
	SideSellStop  Side = "sell stop"
)

// IsBuy reports whether the side is long-directed.
func (s Side) IsBuy() bool {
	return s == SideBuy || s == SideBuyLimit || s == SideBuyStop
}

// Status is the order lifecycle state.
// pending -> active -> {filled|rejected|cancelled} -> closed
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusFilled    Status = "filled"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Order is a broker-agnostic trading order. Orders are never deleted, only
// archived to history once closed.
type Order struct {
	Ticket          int64
	ClientID        string // uuid, unique across terminal instances
	Symbol          string
	Side            Side
	Volume          float64 // lots
	OpenPrice       float64
	OpenTime        time.Time
	StopLoss        float64
	TakeProfit      float64
	Status          Status
	ClosePrice      float64
	CloseTime       time.Time
	Comment         string // "<strategy>:<type>@<terminal>" tag, used for routing
	RejectionReason string
}

// Profit returns realized P&L for closed orders, otherwise the floating P&L
// at currentPrice, using the simplified pip/lot model.
func (o *Order) Profit(currentPrice float64) float64 {
	var diff float64
	if o.Status == StatusClosed && o.ClosePrice != 0 {
		diff = o.ClosePrice - o.OpenPrice
	} else {
		diff = currentPrice - o.OpenPrice
	}

	if !o.Side.IsBuy() {
		diff = -diff
	}

	pips := diff * PipsPerUnit
	return round2(pips * PipValue * o.Volume)
}

// IsOpen reports whether the order still occupies a position slot.
func (o *Order) IsOpen() bool {
	return o.Status == StatusActive || o.Status == StatusFilled
}

// Duration returns how long the order has been (or was) open.
func (o *Order) Duration() time.Duration {
	if !o.CloseTime.IsZero() {
		return o.CloseTime.Sub(o.OpenTime)
	}
	return time.Since(o.OpenTime)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
