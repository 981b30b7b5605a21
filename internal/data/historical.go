package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"terminal-core/internal/market"
)

// HistoryService warms the candle store from the broker's historical-data
// endpoint (or a local file) so indicator strategies have context before
// the first live bar seals.
type HistoryService struct {
	baseURL string
	client  *http.Client
}

// NewHistoryService points the loader at a history endpoint. The endpoint
// is queried as baseURL?symbol=...&timeframe=...&count=...
func NewHistoryService(baseURL string) *HistoryService {
	return &HistoryService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch returns up to count candles for the symbol and timeframe, oldest
// first.
func (s *HistoryService) Fetch(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Candle, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("history: no endpoint configured")
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("history: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("timeframe", string(tf))
	q.Set("count", fmt.Sprintf("%d", count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: fetch %s: status %d", symbol, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", symbol, err)
	}
	return market.ParseHistory(payload)
}

// LoadFile reads a saved history payload from disk, for offline runs and
// backtest fixtures.
func LoadFile(path string) ([]market.Candle, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return market.ParseHistory(payload)
}

// WarmUp imports history for every symbol/timeframe pair into the
// pipeline. Failures are collected, one bad symbol does not stop the rest.
func (s *HistoryService) WarmUp(ctx context.Context, pipeline *market.Pipeline, symbols []string, tfs []market.Timeframe, count int) error {
	var failed []string
	for _, sym := range symbols {
		for _, tf := range tfs {
			candles, err := s.Fetch(ctx, sym, tf, count)
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s/%s: %v", sym, tf, err))
				continue
			}
			pipeline.ImportCandles(sym, tf, candles)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("history warm-up incomplete: %s", strings.Join(failed, "; "))
	}
	return nil
}
