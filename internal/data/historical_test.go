package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"terminal-core/internal/events"
	"terminal-core/internal/market"
	"terminal-core/pkg/symbols"
)

// Broker history payloads arrive newest first with string-typed numbers.
const historyPayload = `[
	{"ssboe":"1748850120","into":"100.30","inth":"100.60","intl":"100.10","intc":"100.50","v":"1200"},
	{"ssboe":"1748850060","into":"100.00","inth":"100.40","intl":"99.90","intc":"100.30","v":"900"}
]`

func TestFetchParsesBrokerPayload(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(historyPayload))
	}))
	defer ts.Close()

	svc := NewHistoryService(ts.URL)
	candles, err := svc.Fetch(context.Background(), "TSE|2885", market.TimeframeM1, 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	// Oldest first after the flip.
	if candles[0].Close != 100.30 || candles[1].Close != 100.50 {
		t.Fatalf("wrong order: %+v", candles)
	}
	if gotQuery == "" {
		t.Fatal("expected query parameters on the history request")
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	svc := NewHistoryService(ts.URL)
	if _, err := svc.Fetch(context.Background(), "TSE|2885", market.TimeframeM1, 50); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestWarmUpImportsIntoPipeline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(historyPayload))
	}))
	defer ts.Close()

	pipeline := market.NewPipeline(events.NewBus(), symbols.NewNormalizer())
	svc := NewHistoryService(ts.URL)

	err := svc.WarmUp(context.Background(), pipeline, []string{"TSE|2885"}, []market.Timeframe{market.TimeframeM1}, 50)
	if err != nil {
		t.Fatalf("warm up: %v", err)
	}

	candles := pipeline.GetCandles("TSE|2885", market.TimeframeM1, 10)
	if len(candles) != 2 {
		t.Fatalf("expected 2 imported candles, got %d", len(candles))
	}
}

func TestWarmUpCollectsFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BAD" {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}
		w.Write([]byte(historyPayload))
	}))
	defer ts.Close()

	pipeline := market.NewPipeline(events.NewBus(), symbols.NewNormalizer())
	svc := NewHistoryService(ts.URL)

	err := svc.WarmUp(context.Background(), pipeline, []string{"TSE|2885", "BAD"}, []market.Timeframe{market.TimeframeM1}, 50)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	// The good symbol still imported.
	if got := pipeline.GetCandles("TSE|2885", market.TimeframeM1, 10); len(got) != 2 {
		t.Fatalf("expected good symbol to import, got %d candles", len(got))
	}
}
