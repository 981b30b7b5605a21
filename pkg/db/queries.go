package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ----------------------------------------
// Users
// ----------------------------------------

// CreateUser inserts a terminal login.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail returns nil when the email is unknown.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ----------------------------------------
// Trade history
// ----------------------------------------

// InsertTrade records a closed trade. Replaying the same ticket overwrites
// the earlier row, so retried persistence stays consistent.
func (d *Database) InsertTrade(ctx context.Context, t TradeRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO trade_history
		(ticket, client_id, symbol, side, volume, open_price, close_price,
		 stop_loss, take_profit, profit, open_time, close_time, close_reason, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Ticket, t.ClientID, t.Symbol, t.Side, t.Volume, t.OpenPrice, t.ClosePrice,
		t.StopLoss, t.TakeProfit, t.Profit, t.OpenTime, t.CloseTime, t.CloseReason, t.Comment)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns the most recent closed trades, newest first. A zero
// limit means 100.
func (d *Database) ListTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT ticket, client_id, symbol, side, volume, open_price, close_price,
		       stop_loss, take_profit, profit, open_time, close_time,
		       COALESCE(close_reason, ''), COALESCE(comment, '')
		FROM trade_history
		ORDER BY close_time DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.Ticket, &t.ClientID, &t.Symbol, &t.Side, &t.Volume,
			&t.OpenPrice, &t.ClosePrice, &t.StopLoss, &t.TakeProfit, &t.Profit,
			&t.OpenTime, &t.CloseTime, &t.CloseReason, &t.Comment); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Strategy states
// ----------------------------------------

// SaveStrategyState upserts one strategy's persisted snapshot.
func (d *Database) SaveStrategyState(ctx context.Context, s StrategyStateRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO strategy_states
		(name, status, symbol, timeframe, total_trades, winning_trades, profit, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			symbol = excluded.symbol,
			timeframe = excluded.timeframe,
			total_trades = excluded.total_trades,
			winning_trades = excluded.winning_trades,
			profit = excluded.profit,
			last_error = excluded.last_error,
			updated_at = CURRENT_TIMESTAMP
	`, s.Name, s.Status, s.Symbol, s.Timeframe, s.TotalTrades, s.WinningTrades, s.Profit, s.LastError)
	if err != nil {
		return fmt.Errorf("save strategy state: %w", err)
	}
	return nil
}

// ListStrategyStates returns every persisted strategy snapshot.
func (d *Database) ListStrategyStates(ctx context.Context) ([]StrategyStateRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT name, status, symbol, timeframe, total_trades, winning_trades,
		       profit, COALESCE(last_error, ''), updated_at
		FROM strategy_states ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list strategy states: %w", err)
	}
	defer rows.Close()

	var out []StrategyStateRecord
	for rows.Next() {
		var s StrategyStateRecord
		if err := rows.Scan(&s.Name, &s.Status, &s.Symbol, &s.Timeframe,
			&s.TotalTrades, &s.WinningTrades, &s.Profit, &s.LastError, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Risk metrics
// ----------------------------------------

// UpsertRiskMetrics writes the day's row, keyed by date string (YYYY-MM-DD).
func (d *Database) UpsertRiskMetrics(ctx context.Context, r RiskMetricsRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_metrics (date, balance, equity, daily_pnl, daily_trades)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			balance = excluded.balance,
			equity = excluded.equity,
			daily_pnl = excluded.daily_pnl,
			daily_trades = excluded.daily_trades
	`, r.Date, r.Balance, r.Equity, r.DailyPnL, r.DailyTrades)
	if err != nil {
		return fmt.Errorf("upsert risk metrics: %w", err)
	}
	return nil
}

// GetRiskMetrics returns one day's row.
func (d *Database) GetRiskMetrics(ctx context.Context, date string) (RiskMetricsRecord, error) {
	var r RiskMetricsRecord
	err := d.DB.QueryRowContext(ctx, `
		SELECT date, balance, equity, daily_pnl, daily_trades
		FROM risk_metrics WHERE date = ?
	`, date).Scan(&r.Date, &r.Balance, &r.Equity, &r.DailyPnL, &r.DailyTrades)
	if errors.Is(err, sql.ErrNoRows) {
		return RiskMetricsRecord{}, ErrNotFound
	}
	if err != nil {
		return RiskMetricsRecord{}, fmt.Errorf("get risk metrics: %w", err)
	}
	return r, nil
}
