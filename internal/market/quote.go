package market

import "time"

// Quote is the live best bid/ask/last snapshot for one instrument. One
// mutable instance exists per symbol name and is overwritten on every tick.
type Quote struct {
	Name        string // broker spelling, possibly "EXCH|TOKEN"
	DisplayName string // human spelling, possibly "EXCH:NAME"
	Bid         float64
	Ask         float64
	Last        float64
	DayHigh     float64
	DayLow      float64
	DayClose    float64
	Volume      float64
	TickTime    time.Time
}

// Spread returns the bid/ask spread in pips for a 4-digit quote.
func (q *Quote) Spread() float64 {
	return (q.Ask - q.Bid) * 10000
}
