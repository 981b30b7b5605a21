package risk

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"terminal-core/internal/events"
	"terminal-core/internal/order"
)

// Config holds the account-level risk limits.
type Config struct {
	DefaultRiskPercent float64 // default per-trade risk %
	MaxRiskPerTrade    float64 // hard cap on per-trade risk %
	MaxDailyLossPct    float64 // daily loss limit as % of balance
	MaxVolume          float64 // per-order lot cap
	MinVolume          float64 // broker minimum lot
}

// DefaultConfig mirrors the terminal defaults.
func DefaultConfig() Config {
	return Config{
		DefaultRiskPercent: 2.0,
		MaxRiskPerTrade:    2.0,
		MaxDailyLossPct:    5.0,
		MaxVolume:          10.0,
		MinVolume:          0.01,
	}
}

// SizingConfig is the per-strategy slice of configuration the sizer needs.
type SizingConfig struct {
	LotSize       float64
	RiskPercent   float64
	DynamicSizing bool
}

// Manager gates and sizes every prospective trade. Balance and equity track
// the broker's account feed; the daily-loss accumulator is reset once per
// calendar-day rollover by ResetDailyLossIfNewDay.
type Manager struct {
	mu sync.RWMutex

	cfg     Config
	bus     *events.Bus
	balance float64
	equity  float64

	dailyLoss     float64
	dailyLossDate time.Time
}

// NewManager creates a risk manager seeded with an initial balance.
func NewManager(cfg Config, bus *events.Bus, initialBalance float64) *Manager {
	m := &Manager{
		cfg:           cfg,
		bus:           bus,
		balance:       initialBalance,
		equity:        initialBalance,
		dailyLossDate: time.Now(),
	}
	log.Printf("risk: initialized with balance $%.2f, daily loss limit %.1f%%",
		initialBalance, cfg.MaxDailyLossPct)
	return m
}

// UpdateAccount refreshes balance and equity from the broker account feed.
func (m *Manager) UpdateAccount(balance, equity float64) {
	m.mu.Lock()
	m.balance = balance
	m.equity = equity
	m.mu.Unlock()
}

// Balance returns the last known account balance.
func (m *Manager) Balance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// CalculatePositionSize returns the lot size for a prospective trade. With
// dynamic sizing the lot is risk_amount / (SL pips * pip value), rounded to
// two decimals and floored at the minimum lot. A zero stop distance falls
// back to the fixed lot with a warning; it never divides by zero.
func (m *Manager) CalculatePositionSize(cfg SizingConfig, entry, stopLoss float64) float64 {
	if !cfg.DynamicSizing {
		return cfg.LotSize
	}

	m.mu.RLock()
	balance := m.balance
	m.mu.RUnlock()

	riskAmount := balance * (cfg.RiskPercent / 100)
	slPips := math.Abs(entry-stopLoss) * order.PipsPerUnit

	if slPips == 0 {
		log.Printf("risk: stop loss distance is 0 pips, using fixed lot %.2f", cfg.LotSize)
		return cfg.LotSize
	}

	lot := riskAmount / (slPips * order.PipValue)
	lot = math.Round(lot*100) / 100
	if lot < m.cfg.MinVolume {
		lot = m.cfg.MinVolume
	}

	log.Printf("risk: calculated lot %.2f (risk $%.2f, SL %.1f pips)", lot, riskAmount, slPips)
	return lot
}

// CalculateStopLoss returns entry -/+ pips depending on side.
func (m *Manager) CalculateStopLoss(entry float64, isBuy bool, pips float64) float64 {
	if isBuy {
		return round5(entry - pips*order.PipUnit)
	}
	return round5(entry + pips*order.PipUnit)
}

// CalculateTakeProfit returns entry +/- pips depending on side.
func (m *Manager) CalculateTakeProfit(entry float64, isBuy bool, pips float64) float64 {
	if isBuy {
		return round5(entry + pips*order.PipUnit)
	}
	return round5(entry - pips*order.PipUnit)
}

// CanOpenPosition checks admission for a new position and returns the
// decision with a reason.
func (m *Manager) CanOpenPosition(strategy string, riskPercent, lot float64) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dailyLoss < 0 && m.balance > 0 {
		lossPct := math.Abs(m.dailyLoss/m.balance) * 100
		if lossPct >= m.cfg.MaxDailyLossPct {
			return false, fmt.Sprintf("daily loss limit reached: %.2f%%", lossPct)
		}
	}

	if riskPercent > m.cfg.MaxRiskPerTrade {
		return false, fmt.Sprintf("risk %.2f%% exceeds max %.2f%%", riskPercent, m.cfg.MaxRiskPerTrade)
	}

	if m.equity <= m.balance*0.5 {
		return false, "account equity below 50% of balance"
	}

	return true, "OK"
}

// ValidateOrder re-checks an order immediately before placement: volume
// bounds, a risk:reward sanity warning (which does not block), then the
// admission checks again.
func (m *Manager) ValidateOrder(o *order.Order, strategy string, riskPercent float64) (bool, string) {
	if o.Volume <= 0 {
		return false, "invalid volume"
	}
	if o.Volume > m.cfg.MaxVolume {
		return false, fmt.Sprintf("volume exceeds maximum (%.0f lots)", m.cfg.MaxVolume)
	}

	if o.StopLoss > 0 && o.TakeProfit > 0 {
		if rr := RiskRewardRatio(o.OpenPrice, o.StopLoss, o.TakeProfit); rr < 0.5 {
			log.Printf("risk: poor risk:reward ratio 1:%.2f on %s order", rr, o.Symbol)
			if m.bus != nil {
				m.bus.Publish(events.EventRiskAlert, fmt.Sprintf("poor risk:reward 1:%.2f for %s", rr, strategy))
			}
		}
	}

	return m.CanOpenPosition(strategy, riskPercent, o.Volume)
}

// UpdateDailyLoss folds a realized profit into the daily accumulator.
func (m *Manager) UpdateDailyLoss(profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dailyLoss += profit
	if m.dailyLoss < 0 && m.balance > 0 {
		log.Printf("risk: daily loss $%.2f (%.2f%%)", m.dailyLoss, math.Abs(m.dailyLoss/m.balance)*100)
	}
}

// ResetDailyLoss zeroes the accumulator unconditionally.
func (m *Manager) ResetDailyLoss() {
	m.mu.Lock()
	m.dailyLoss = 0
	m.dailyLossDate = time.Now()
	m.mu.Unlock()
	log.Println("risk: daily loss counter reset")
}

// ResetDailyLossIfNewDay resets the accumulator exactly once per
// calendar-day rollover.
func (m *Manager) ResetDailyLossIfNewDay(now time.Time) {
	m.mu.Lock()
	y1, mo1, d1 := m.dailyLossDate.Date()
	y2, mo2, d2 := now.Date()
	rolled := y2 > y1 || (y2 == y1 && (mo2 > mo1 || (mo2 == mo1 && d2 > d1)))
	if rolled {
		m.dailyLoss = 0
		m.dailyLossDate = now
	}
	m.mu.Unlock()
	if rolled {
		log.Println("risk: new trading day, daily loss counter reset")
	}
}

// RiskRewardRatio returns reward/risk for an entry with SL and TP set.
func RiskRewardRatio(entry, sl, tp float64) float64 {
	riskDist := math.Abs(entry - sl)
	if riskDist == 0 {
		return 0
	}
	return math.Round(math.Abs(tp-entry)/riskDist*100) / 100
}

// Summary is the exported risk snapshot for the control surface.
type Summary struct {
	Balance         float64 `json:"account_balance"`
	Equity          float64 `json:"account_equity"`
	DailyLoss       float64 `json:"daily_loss"`
	DailyLossPct    float64 `json:"daily_loss_percent"`
	DailyLossLimit  float64 `json:"daily_loss_limit"`
	RiskPerTrade    float64 `json:"risk_per_trade"`
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
}

// GetRiskSummary returns the current risk snapshot.
func (m *Manager) GetRiskSummary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pct := 0.0
	if m.dailyLoss < 0 && m.balance > 0 {
		pct = math.Round(math.Abs(m.dailyLoss/m.balance)*100*100) / 100
	}
	return Summary{
		Balance:         m.balance,
		Equity:          m.equity,
		DailyLoss:       m.dailyLoss,
		DailyLossPct:    pct,
		DailyLossLimit:  m.cfg.MaxDailyLossPct,
		RiskPerTrade:    m.cfg.DefaultRiskPercent,
		MaxRiskPerTrade: m.cfg.MaxRiskPerTrade,
	}
}

func round5(v float64) float64 {
	return math.Round(v*100000) / 100000
}
