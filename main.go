package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"terminal-core/internal/api"
	"terminal-core/internal/broker"
	"terminal-core/internal/data"
	"terminal-core/internal/engine"
	"terminal-core/internal/events"
	"terminal-core/internal/execution"
	"terminal-core/internal/market"
	"terminal-core/internal/monitor"
	"terminal-core/internal/persistence"
	"terminal-core/internal/position"
	"terminal-core/internal/reconciliation"
	"terminal-core/internal/risk"
	"terminal-core/internal/strategy"
	"terminal-core/pkg/config"
	"terminal-core/pkg/db"
	"terminal-core/pkg/symbols"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("terminal core starting on port %s (paper=%v)", cfg.Port, cfg.Paper)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.Migrate(database.DB); err != nil {
		log.Fatalf("db migration failed: %v", err)
	}
	log.Printf("database ready at %s", cfg.DBPath)

	normalizer := symbols.NewNormalizer()
	pipeline := market.NewPipeline(bus, normalizer)
	tracker := position.NewTracker(bus)

	riskCfg := risk.DefaultConfig()
	riskCfg.MaxDailyLossPct = cfg.MaxDailyLossPct
	riskCfg.MaxRiskPerTrade = cfg.MaxRiskPerTrade
	riskMgr := risk.NewManager(riskCfg, bus, cfg.InitialBalance)

	var brk broker.Broker = broker.NewPaper(pipeline, cfg.InitialBalance)
	if err := brk.Connect(ctx); err != nil {
		log.Fatalf("broker connect failed: %v", err)
	}
	defer brk.Disconnect()

	exec := execution.NewService(bus, brk, tracker, riskMgr)
	metrics := monitor.NewSystemMetrics()

	eng := engine.New(engine.Options{
		Bus:        bus,
		Pipeline:   pipeline,
		Exec:       exec,
		Tracker:    tracker,
		Risk:       riskMgr,
		Normalizer: normalizer,
		Deps:       strategy.Deps{Bus: bus, Balance: riskMgr.Balance},
		Metrics:    metrics,

		MaxStrategies: cfg.MaxStrategies,
	})

	// Strategy roster, loaded before the loop starts.
	if roster, err := strategy.LoadRoster(cfg.RosterPath); err != nil {
		log.Printf("strategy roster: %v (starting with none)", err)
	} else if err := roster.RegisterAll(eng.Strategies()); err != nil {
		log.Fatalf("strategy roster: %v", err)
	} else {
		log.Printf("loaded %d strategies from %s", len(roster.Strategies), cfg.RosterPath)
	}

	// Warm the candle store so indicator strategies have context from the
	// first live tick.
	if cfg.HistoryURL != "" {
		history := data.NewHistoryService(cfg.HistoryURL)
		warmTFs := []market.Timeframe{market.TimeframeM1, market.TimeframeM5}
		if err := history.WarmUp(ctx, pipeline, cfg.Symbols, warmTFs, cfg.HistoryCount); err != nil {
			log.Printf("history: %v", err)
		}
	}

	go eng.Run(ctx)

	// Persistence: closed trades, strategy snapshots, risk metrics.
	recorder := persistence.NewRecorder(database, bus, riskMgr.GetRiskSummary)
	defer recorder.Close()

	// Periodic audit of the local ledger against the broker's book.
	recon := reconciliation.NewService(tracker, brk, bus, time.Minute, true)
	go recon.Run(ctx)

	// Alerts go to the log for now.
	mon := &monitor.Monitor{Bus: bus, AlertFn: func(msg string) { log.Printf("ALERT %s", msg) }}
	mon.Start(ctx)

	startFeed(ctx, cfg, eng)

	// API
	server := api.NewServer(
		bus,
		database,
		eng,
		metrics,
		api.SystemMeta{
			Paper:       cfg.Paper,
			Symbols:     cfg.Symbols,
			UseMockFeed: cfg.UseMockFeed,
			Version:     cfg.Version,
		},
		cfg.JWTSecret,
	)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}

// startFeed connects quote delivery to the engine: a synthetic random walk
// for development, or a polled HTTP feed when FEED_URL is set.
func startFeed(ctx context.Context, cfg *config.Config, eng *engine.Engine) {
	if cfg.UseMockFeed || cfg.FeedURL == "" {
		feed := &market.MockFeed{
			Sink:     eng.OnQuote,
			Symbols:  cfg.Symbols,
			Interval: time.Duration(cfg.PollInterval) * time.Millisecond,
		}
		feed.Start(ctx)
		log.Printf("mock feed started for %v", cfg.Symbols)
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}
	fetch := func(ctx context.Context) ([]market.Quote, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.FeedURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("feed: unexpected status %d", resp.StatusCode)
		}
		var quotes []market.Quote
		if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
			return nil, fmt.Errorf("feed: decode: %w", err)
		}
		return quotes, nil
	}

	poller := broker.NewPoller(fetch, eng.OnQuote, time.Duration(cfg.PollInterval)*time.Millisecond)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("feed poller stopped: %v", err)
		}
	}()
	log.Printf("polling feed %s every %dms", cfg.FeedURL, cfg.PollInterval)
}
