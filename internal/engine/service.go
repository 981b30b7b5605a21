package engine

import (
	"context"
	"fmt"

	"terminal-core/internal/broker"
	"terminal-core/internal/market"
	"terminal-core/internal/order"
	"terminal-core/internal/position"
	"terminal-core/internal/risk"
	"terminal-core/internal/strategy"
)

// The methods below are the control surface the API layer uses. Each one
// hops onto the event loop via Do, so handlers on other goroutines never
// race with tick processing.

func (e *Engine) RegisterStrategy(ctx context.Context, cfg strategy.Config) error {
	return e.Do(ctx, func() error { return e.strategies.Register(cfg) })
}

func (e *Engine) UnregisterStrategy(ctx context.Context, name string) error {
	return e.Do(ctx, func() error { return e.strategies.Unregister(name) })
}

func (e *Engine) StartStrategy(ctx context.Context, name string) error {
	return e.Do(ctx, func() error { return e.strategies.Start(name) })
}

func (e *Engine) StopStrategy(ctx context.Context, name string) error {
	return e.Do(ctx, func() error { return e.strategies.Stop(name) })
}

func (e *Engine) PauseStrategy(ctx context.Context, name string) error {
	return e.Do(ctx, func() error { return e.strategies.Pause(name) })
}

func (e *Engine) ResumeStrategy(ctx context.Context, name string) error {
	return e.Do(ctx, func() error { return e.strategies.Resume(name) })
}

func (e *Engine) StrategyStates(ctx context.Context) ([]strategy.State, error) {
	var out []strategy.State
	err := e.Do(ctx, func() error {
		out = e.strategies.States()
		return nil
	})
	return out, err
}

func (e *Engine) StrategyState(ctx context.Context, name string) (strategy.State, error) {
	var out strategy.State
	err := e.Do(ctx, func() error {
		s, ok := e.strategies.Get(name)
		if !ok {
			return fmt.Errorf("strategy %q not found", name)
		}
		out = s.State()
		return nil
	})
	return out, err
}

func (e *Engine) OpenPositions(ctx context.Context) ([]position.Position, error) {
	var out []position.Position
	err := e.Do(ctx, func() error {
		out = e.tracker.Open()
		return nil
	})
	return out, err
}

func (e *Engine) ClosePosition(ctx context.Context, ticket int64) error {
	return e.Do(ctx, func() error {
		return e.exec.ClosePosition(ctx, ticket, 0, position.ReasonManual)
	})
}

func (e *Engine) CloseAllPositions(ctx context.Context) (int, error) {
	var n int
	err := e.Do(ctx, func() error {
		n = e.exec.CloseAll(ctx, position.ReasonManual)
		return nil
	})
	return n, err
}

func (e *Engine) Statistics(ctx context.Context) (position.Statistics, error) {
	var out position.Statistics
	err := e.Do(ctx, func() error {
		out = e.tracker.Stats()
		return nil
	})
	return out, err
}

func (e *Engine) RiskSummary(ctx context.Context) (risk.Summary, error) {
	var out risk.Summary
	err := e.Do(ctx, func() error {
		out = e.riskMgr.GetRiskSummary()
		return nil
	})
	return out, err
}

// SetPaperTrading switches order flow between the paper and live brokers.
func (e *Engine) SetPaperTrading(ctx context.Context, enabled bool) error {
	return e.Do(ctx, func() error { return e.exec.SetPaperTrading(enabled) })
}

// PaperTrading reports which endpoint order flow currently targets.
func (e *Engine) PaperTrading(ctx context.Context) (bool, error) {
	var out bool
	err := e.Do(ctx, func() error {
		out = e.exec.IsPaper()
		return nil
	})
	return out, err
}

func (e *Engine) AccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	var out broker.AccountInfo
	err := e.Do(ctx, func() error {
		info, err := e.exec.Broker().AccountInfo()
		if err != nil {
			return err
		}
		out = info
		return nil
	})
	return out, err
}

func (e *Engine) OrderHistory(ctx context.Context, limit int) ([]order.Order, error) {
	var out []order.Order
	err := e.Do(ctx, func() error {
		out = e.exec.Broker().OrderHistory(limit)
		return nil
	})
	return out, err
}

func (e *Engine) Candles(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Candle, error) {
	var out []market.Candle
	err := e.Do(ctx, func() error {
		out = e.pipeline.GetCandles(symbol, tf, count)
		return nil
	})
	return out, err
}

func (e *Engine) LatestQuote(ctx context.Context, symbol string) (market.Quote, error) {
	var out market.Quote
	err := e.Do(ctx, func() error {
		q, ok := e.pipeline.Quote(symbol)
		if !ok {
			return fmt.Errorf("no quote for %q", symbol)
		}
		out = q
		return nil
	})
	return out, err
}
