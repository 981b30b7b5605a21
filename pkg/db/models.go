package db

import "time"

// User is a terminal login.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TradeRecord is one closed trade in the persistent history.
type TradeRecord struct {
	Ticket      int64     `json:"ticket"`
	ClientID    string    `json:"client_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Volume      float64   `json:"volume"`
	OpenPrice   float64   `json:"open_price"`
	ClosePrice  float64   `json:"close_price"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	Profit      float64   `json:"profit"`
	OpenTime    time.Time `json:"open_time"`
	CloseTime   time.Time `json:"close_time"`
	CloseReason string    `json:"close_reason"`
	Comment     string    `json:"comment"`
}

// StrategyStateRecord is the persisted slice of a strategy's state, enough
// to show history across restarts.
type StrategyStateRecord struct {
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	Symbol        string    `json:"symbol"`
	Timeframe     string    `json:"timeframe"`
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	Profit        float64   `json:"profit"`
	LastError     string    `json:"last_error"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RiskMetricsRecord is one day of account-level risk accounting.
type RiskMetricsRecord struct {
	Date        string  `json:"date"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	DailyPnL    float64 `json:"daily_pnl"`
	DailyTrades int     `json:"daily_trades"`
}
