package strategy

import (
	"fmt"
	"time"

	"terminal-core/internal/market"
	"terminal-core/internal/order"
)

// SignalType enumerates the decisions a strategy can emit.
type SignalType string

const (
	SignalBuy       SignalType = "BUY"
	SignalSell      SignalType = "SELL"
	SignalCloseBuy  SignalType = "CLOSE_BUY"
	SignalCloseSell SignalType = "CLOSE_SELL"
)

// Valid reports whether the signal type is one of the closed set.
func (t SignalType) Valid() bool {
	switch t {
	case SignalBuy, SignalSell, SignalCloseBuy, SignalCloseSell:
		return true
	}
	return false
}

// Signal is a strategy's request to enter or exit a position. It is
// ephemeral: produced once, consumed once by the execution service.
type Signal struct {
	Strategy   string
	Symbol     string
	Type       SignalType
	Timestamp  time.Time
	Price      float64
	Volume     float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
	Confidence float64
}

// Status is the lifecycle state of a strategy instance.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusStopped       Status = "stopped"
	StatusRunning       Status = "running"
	StatusPaused        Status = "paused"
	StatusError         Status = "error"
)

// Config is the full per-strategy configuration. Replacing it requires
// stopping and re-initializing the instance.
type Config struct {
	Name       string           `yaml:"name"`
	Kind       string           `yaml:"kind"`
	Symbol     string           `yaml:"symbol"`
	Timeframe  market.Timeframe `yaml:"timeframe"`
	Parameters map[string]any   `yaml:"parameters"`

	LotSize       float64 `yaml:"lot_size"`
	RiskPercent   float64 `yaml:"risk_percent"`
	DynamicSizing bool    `yaml:"dynamic_sizing"`

	StopLossPips   float64 `yaml:"stop_loss_pips"`
	TakeProfitPips float64 `yaml:"take_profit_pips"`

	UseTrailingStop  bool    `yaml:"use_trailing_stop"`
	TrailingStopPips float64 `yaml:"trailing_stop_pips"`

	EnableTimeFilter bool `yaml:"enable_time_filter"`
	TradingStartHour int  `yaml:"trading_start_hour"`
	TradingEndHour   int  `yaml:"trading_end_hour"`

	MaxSpreadPips          float64 `yaml:"max_spread_pips"`
	MaxDailyLossPct        float64 `yaml:"max_daily_loss"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
}

// Validate rejects configurations missing required fields. Required fields
// are never silently defaulted.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("strategy config: name is required")
	}
	if c.Kind == "" {
		return fmt.Errorf("strategy config %q: kind is required", c.Name)
	}
	if c.Symbol == "" {
		return fmt.Errorf("strategy config %q: symbol is required", c.Name)
	}
	if _, err := market.ParseTimeframe(string(c.Timeframe)); err != nil {
		return fmt.Errorf("strategy config %q: %w", c.Name, err)
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("strategy config %q: lot_size must be positive", c.Name)
	}
	if c.EnableTimeFilter && (c.TradingStartHour < 0 || c.TradingEndHour > 24 || c.TradingStartHour >= c.TradingEndHour) {
		return fmt.Errorf("strategy config %q: invalid trading hours %d-%d", c.Name, c.TradingStartHour, c.TradingEndHour)
	}
	if c.MaxConcurrentPositions <= 0 {
		c.MaxConcurrentPositions = 1
	}
	if c.MaxDailyLossPct <= 0 {
		c.MaxDailyLossPct = 5.0
	}
	return nil
}

// State is the observable snapshot of one strategy instance.
type State struct {
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	Symbol        string    `json:"symbol"`
	Timeframe     string    `json:"timeframe"`
	StartedTime   time.Time `json:"started_time"`
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	OpenPositions int       `json:"open_positions"`
	Profit        float64   `json:"profit"`
	LastSignal    *Signal   `json:"last_signal,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	LastUpdate    time.Time `json:"last_update"`
}

// Strategy is the uniform lifecycle interface every strategy kind
// implements. Handlers are invoked only from the engine loop.
type Strategy interface {
	Name() string
	Initialize(cfg Config) error
	Start() error
	Stop()
	Pause()
	Resume()
	OnTick(q market.Quote) error
	OnBar(tf market.Timeframe, c market.Candle) error
	OnOrderUpdate(o order.Order)
	State() State
	Config() Config
}
