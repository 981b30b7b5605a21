package broker

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"terminal-core/internal/market"
)

// FetchFunc pulls the current quotes for the subscribed symbols from the
// upstream feed.
type FetchFunc func(ctx context.Context) ([]market.Quote, error)

// Poller drives a pull-based quote feed at a bounded rate and hands each
// quote to the sink. Consecutive fetch failures back off before retrying
// so a dead upstream is not hammered.
type Poller struct {
	fetch   FetchFunc
	sink    func(market.Quote)
	limiter *rate.Limiter
	backoff time.Duration
}

// NewPoller builds a poller issuing at most one fetch per interval.
func NewPoller(fetch FetchFunc, sink func(market.Quote), interval time.Duration) *Poller {
	return &Poller{
		fetch:   fetch,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		backoff: 5 * time.Second,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		quotes, err := p.fetch(ctx)
		if err != nil {
			failures++
			log.Printf("poller: fetch failed (%d in a row): %v", failures, err)
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		failures = 0

		for _, q := range quotes {
			p.sink(q)
		}
	}
}
