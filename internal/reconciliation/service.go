package reconciliation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/order"
	"terminal-core/internal/position"
)

const historyLookback = 200

// Ledger is the terminal-side view of open positions.
type Ledger interface {
	Open() []position.Position
	MarkClosed(o order.Order, reason position.CloseReason) bool
}

// BrokerView is the broker-side view the audit runs against.
type BrokerView interface {
	IsConnected() bool
	OpenOrders() []order.Order
	OrderHistory(limit int) []order.Order
}

// Service periodically audits the position ledger against the broker.
// Positions the broker no longer holds are retired locally; orders the
// broker holds that the terminal does not track are reported but never
// adopted, ownership cannot be invented after the fact.
type Service struct {
	ledger   Ledger
	broker   BrokerView
	bus      *events.Bus
	interval time.Duration
	autoSync bool
	mu       sync.Mutex
}

// Report contains one audit's findings.
type Report struct {
	Timestamp   time.Time
	StaleLocal  []int64 // tracked here, gone at the broker
	Unknown     []int64 // open at the broker, not tracked here
	SyncedCount int
}

// HasDiffs reports whether the audit found any divergence.
func (r Report) HasDiffs() bool {
	return len(r.StaleLocal) > 0 || len(r.Unknown) > 0
}

// NewService creates a reconciliation service. With autoSync enabled,
// stale local positions are closed out of the ledger using the broker's
// recorded close.
func NewService(ledger Ledger, broker BrokerView, bus *events.Bus, interval time.Duration, autoSync bool) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		ledger:   ledger,
		broker:   broker,
		bus:      bus,
		interval: interval,
		autoSync: autoSync,
	}
}

// Run audits on the configured interval until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := s.ReconcileOnce()
			if report.HasDiffs() {
				log.Printf("reconciliation: %d stale local, %d unknown at broker, %d synced",
					len(report.StaleLocal), len(report.Unknown), report.SyncedCount)
			}
		}
	}
}

// ReconcileOnce performs a single audit pass.
func (s *Service) ReconcileOnce() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{Timestamp: time.Now()}
	if !s.broker.IsConnected() {
		return report
	}

	brokerOpen := make(map[int64]order.Order)
	for _, o := range s.broker.OpenOrders() {
		brokerOpen[o.Ticket] = o
	}

	tracked := make(map[int64]struct{})
	for _, p := range s.ledger.Open() {
		tracked[p.Order.Ticket] = struct{}{}
		if _, ok := brokerOpen[p.Order.Ticket]; ok {
			continue
		}
		report.StaleLocal = append(report.StaleLocal, p.Order.Ticket)
		if s.autoSync && s.retire(p.Order) {
			report.SyncedCount++
		}
	}

	for ticket := range brokerOpen {
		if _, ok := tracked[ticket]; !ok {
			report.Unknown = append(report.Unknown, ticket)
		}
	}

	if report.HasDiffs() && s.bus != nil {
		s.bus.Publish(events.EventRiskAlert, fmt.Sprintf(
			"position audit: %d stale local, %d unknown at broker",
			len(report.StaleLocal), len(report.Unknown)))
	}
	return report
}

// retire closes a stale local position using the broker's recorded close
// so the booked P&L matches the broker. When the broker has no record the
// position is retired flat rather than inventing a result.
func (s *Service) retire(o order.Order) bool {
	closed, found := s.findClosed(o.Ticket)
	if !found {
		closed = o
		closed.Status = order.StatusClosed
		closed.ClosePrice = closed.OpenPrice
		closed.CloseTime = time.Now()
	}
	return s.ledger.MarkClosed(closed, position.ReasonReconciled)
}

func (s *Service) findClosed(ticket int64) (order.Order, bool) {
	for _, h := range s.broker.OrderHistory(historyLookback) {
		if h.Ticket == ticket && h.Status == order.StatusClosed {
			return h, true
		}
	}
	return order.Order{}, false
}
