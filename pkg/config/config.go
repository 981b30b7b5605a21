package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the terminal core.
type Config struct {
	Port string

	// Market data
	Symbols      []string
	UseMockFeed  bool
	FeedURL      string
	PollInterval int // milliseconds between feed polls
	HistoryURL   string
	HistoryCount int // candles per symbol/timeframe at warm-up

	// Broker
	Paper          bool
	InitialBalance float64

	// Strategies
	RosterPath    string
	MaxStrategies int // running-strategy cap

	// Risk
	MaxDailyLossPct float64
	MaxRiskPerTrade float64

	// Database
	DBPath string

	// Auth
	JWTSecret string

	Version string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/terminal.db")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "TSE|2885,TSE|2330")),
		UseMockFeed:     getEnv("USE_MOCK_FEED", "true") == "true",
		FeedURL:         getEnv("FEED_URL", ""),
		PollInterval:    getEnvInt("FEED_POLL_INTERVAL_MS", 500),
		HistoryURL:      getEnv("HISTORY_URL", ""),
		HistoryCount:    getEnvInt("HISTORY_COUNT", 200),
		Paper:           getEnv("PAPER_TRADING", "true") == "true",
		InitialBalance:  getEnvFloat("INITIAL_BALANCE", 10000.0),
		RosterPath:      getEnv("STRATEGY_ROSTER", "./strategies.yaml"),
		MaxStrategies:   getEnvInt("MAX_CONCURRENT_STRATEGIES", 5),
		MaxDailyLossPct: getEnvFloat("MAX_DAILY_LOSS_PCT", 5.0),
		MaxRiskPerTrade: getEnvFloat("MAX_RISK_PER_TRADE_PCT", 2.0),
		DBPath:          dbPath,
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		Version:         getEnv("VERSION", "dev"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
