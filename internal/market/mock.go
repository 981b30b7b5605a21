package market

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// MockFeed generates synthetic quotes for local development, pushing them
// into a sink the way a broker adapter would.
type MockFeed struct {
	Sink       func(Quote)
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

// Start launches the synthetic tick loop until the context is cancelled.
func (m *MockFeed) Start(ctx context.Context) {
	if m.Sink == nil {
		log.Println("mock feed: sink not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"NSE:SBIN-EQ"}
	}
	price := m.StartPrice
	if price == 0 {
		price = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					// simple random walk
					price += (rand.Float64()*2 - 1) * m.Step
					spread := price * 0.0001
					m.Sink(Quote{
						Name:        sym,
						DisplayName: sym,
						Bid:         price - spread/2,
						Ask:         price + spread/2,
						Last:        price,
						TickTime:    time.Now(),
					})
				}
			}
		}
	}()
}
