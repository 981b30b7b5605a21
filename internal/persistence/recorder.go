package persistence

import (
	"context"
	"log"
	"sync"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/position"
	"terminal-core/internal/risk"
	"terminal-core/internal/strategy"
	"terminal-core/pkg/db"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultMaxPending    = 50
	writeTimeout         = 5 * time.Second
	subBuffer            = 256
)

// Recorder listens on the event bus and persists closed trades, strategy
// snapshots and daily risk metrics. Writes are buffered and flushed in the
// background so the trading path never waits on SQLite.
type Recorder struct {
	db      *db.Database
	summary func() risk.Summary

	mu          sync.Mutex
	trades      []db.TradeRecord
	states      map[string]db.StrategyStateRecord
	account     *events.AccountPayload
	dailyTrades int
	day         string

	flushInterval time.Duration
	maxPending    int

	unsubs []func()
	done   chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewRecorder subscribes to the bus and starts the background flusher.
// summary may be nil; it enriches the daily risk row when set.
func NewRecorder(d *db.Database, bus *events.Bus, summary func() risk.Summary) *Recorder {
	r := &Recorder{
		db:            d,
		summary:       summary,
		states:        make(map[string]db.StrategyStateRecord),
		flushInterval: defaultFlushInterval,
		maxPending:    defaultMaxPending,
		done:          make(chan struct{}),
		now:           time.Now,
	}

	closedCh, unsub1 := bus.Subscribe(events.EventPositionClosed, subBuffer)
	stateCh, unsub2 := bus.Subscribe(events.EventStrategyUpdated, subBuffer)
	accountCh, unsub3 := bus.Subscribe(events.EventAccountUpdated, subBuffer)
	r.unsubs = append(r.unsubs, unsub1, unsub2, unsub3)

	r.wg.Add(1)
	go r.run(closedCh, stateCh, accountCh)
	return r
}

func (r *Recorder) run(closedCh, stateCh, accountCh <-chan any) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case raw := <-closedCh:
			if ct, ok := raw.(position.ClosedTrade); ok {
				r.addTrade(ct)
			}
		case raw := <-stateCh:
			if st, ok := raw.(strategy.State); ok {
				r.addState(st)
			}
		case raw := <-accountCh:
			if ap, ok := raw.(events.AccountPayload); ok {
				r.mu.Lock()
				cp := ap
				r.account = &cp
				r.mu.Unlock()
			}
		case <-ticker.C:
			r.Flush()
		case <-r.done:
			r.Flush()
			return
		}
	}
}

func (r *Recorder) addTrade(ct position.ClosedTrade) {
	o := ct.Order
	r.mu.Lock()
	day := o.CloseTime.UTC().Format("2006-01-02")
	if day != r.day {
		r.day = day
		r.dailyTrades = 0
	}
	r.dailyTrades++
	r.trades = append(r.trades, db.TradeRecord{
		Ticket:      o.Ticket,
		ClientID:    o.ClientID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Volume:      o.Volume,
		OpenPrice:   o.OpenPrice,
		ClosePrice:  o.ClosePrice,
		StopLoss:    o.StopLoss,
		TakeProfit:  o.TakeProfit,
		Profit:      o.Profit(o.ClosePrice),
		OpenTime:    o.OpenTime,
		CloseTime:   o.CloseTime,
		CloseReason: string(ct.Reason),
		Comment:     o.Comment,
	})
	full := len(r.trades) >= r.maxPending
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

func (r *Recorder) addState(st strategy.State) {
	r.mu.Lock()
	r.states[st.Name] = db.StrategyStateRecord{
		Name:          st.Name,
		Status:        string(st.Status),
		Symbol:        st.Symbol,
		Timeframe:     st.Timeframe,
		TotalTrades:   st.TotalTrades,
		WinningTrades: st.WinningTrades,
		Profit:        st.Profit,
		LastError:     st.LastError,
	}
	r.mu.Unlock()
}

// Flush writes everything buffered so far. Failed writes are logged and
// dropped; history is best effort, trading state lives in memory.
func (r *Recorder) Flush() {
	r.mu.Lock()
	trades := r.trades
	r.trades = nil
	states := r.states
	if len(states) > 0 {
		r.states = make(map[string]db.StrategyStateRecord)
	}
	account := r.account
	r.account = nil
	dailyTrades := r.dailyTrades
	r.mu.Unlock()

	if len(trades) == 0 && len(states) == 0 && account == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	for _, t := range trades {
		if err := r.db.InsertTrade(ctx, t); err != nil {
			log.Printf("persistence: insert trade %d: %v", t.Ticket, err)
		}
	}
	for _, s := range states {
		if err := r.db.SaveStrategyState(ctx, s); err != nil {
			log.Printf("persistence: save strategy %s: %v", s.Name, err)
		}
	}
	if account != nil {
		rec := db.RiskMetricsRecord{
			Date:        r.now().UTC().Format("2006-01-02"),
			Balance:     account.Balance,
			Equity:      account.Equity,
			DailyTrades: dailyTrades,
		}
		if r.summary != nil {
			rec.DailyPnL = -r.summary().DailyLoss
		}
		if err := r.db.UpsertRiskMetrics(ctx, rec); err != nil {
			log.Printf("persistence: upsert risk metrics: %v", err)
		}
	}
}

// Close unsubscribes, flushes the remainder and stops the flusher.
func (r *Recorder) Close() {
	for _, u := range r.unsubs {
		u()
	}
	close(r.done)
	r.wg.Wait()
}
