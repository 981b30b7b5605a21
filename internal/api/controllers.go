package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"terminal-core/internal/market"
	"terminal-core/internal/strategy"

	"github.com/gin-gonic/gin"
)

type registerStrategyRequest struct {
	Name       string         `json:"name" binding:"required,min=1,max=120"`
	Kind       string         `json:"kind" binding:"required,min=1"`
	Symbol     string         `json:"symbol" binding:"required,min=1"`
	Timeframe  string         `json:"timeframe" binding:"required,min=1"`
	Parameters map[string]any `json:"parameters"`

	LotSize       float64 `json:"lot_size"`
	RiskPercent   float64 `json:"risk_percent"`
	DynamicSizing bool    `json:"dynamic_sizing"`

	StopLossPips   float64 `json:"stop_loss_pips"`
	TakeProfitPips float64 `json:"take_profit_pips"`

	UseTrailingStop  bool    `json:"use_trailing_stop"`
	TrailingStopPips float64 `json:"trailing_stop_pips"`

	EnableTimeFilter bool `json:"enable_time_filter"`
	TradingStartHour int  `json:"trading_start_hour"`
	TradingEndHour   int  `json:"trading_end_hour"`

	MaxSpreadPips          float64 `json:"max_spread_pips"`
	MaxDailyLossPct        float64 `json:"max_daily_loss"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
}

func (r *registerStrategyRequest) toConfig() strategy.Config {
	return strategy.Config{
		Name:                   r.Name,
		Kind:                   r.Kind,
		Symbol:                 r.Symbol,
		Timeframe:              market.Timeframe(r.Timeframe),
		Parameters:             r.Parameters,
		LotSize:                r.LotSize,
		RiskPercent:            r.RiskPercent,
		DynamicSizing:          r.DynamicSizing,
		StopLossPips:           r.StopLossPips,
		TakeProfitPips:         r.TakeProfitPips,
		UseTrailingStop:        r.UseTrailingStop,
		TrailingStopPips:       r.TrailingStopPips,
		EnableTimeFilter:       r.EnableTimeFilter,
		TradingStartHour:       r.TradingStartHour,
		TradingEndHour:         r.TradingEndHour,
		MaxSpreadPips:          r.MaxSpreadPips,
		MaxDailyLossPct:        r.MaxDailyLossPct,
		MaxConcurrentPositions: r.MaxConcurrentPositions,
	}
}

type listQuery struct {
	Limit int `form:"limit"`
}

func (q *listQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// statusForEngineError maps registry errors onto HTTP codes by message,
// the engine facade returns plain errors.
func statusForEngineError(err error) (int, string) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound, "NOT_FOUND"
	case strings.Contains(msg, "already registered"):
		return http.StatusConflict, "ALREADY_EXISTS"
	default:
		return http.StatusBadRequest, "INVALID_REQUEST"
	}
}

// ----- strategies -----

func (s *Server) listStrategies(c *gin.Context) {
	states, err := s.Engine.StrategyStates(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, states)
}

func (s *Server) getStrategy(c *gin.Context) {
	state, err := s.Engine.StrategyState(c.Request.Context(), c.Param("name"))
	if err != nil {
		status, code := statusForEngineError(err)
		respondError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) registerStrategy(c *gin.Context) {
	var req registerStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}

	cfg := req.toConfig()
	if err := s.Engine.RegisterStrategy(c.Request.Context(), cfg); err != nil {
		status, code := statusForEngineError(err)
		respondError(c, status, code, err.Error())
		return
	}

	state, err := s.Engine.StrategyState(c.Request.Context(), cfg.Name)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusCreated, state)
}

func (s *Server) unregisterStrategy(c *gin.Context) {
	if err := s.Engine.UnregisterStrategy(c.Request.Context(), c.Param("name")); err != nil {
		status, code := statusForEngineError(err)
		respondError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}

func (s *Server) startStrategy(c *gin.Context)  { s.lifecycle(c, s.Engine.StartStrategy, "started") }
func (s *Server) stopStrategy(c *gin.Context)   { s.lifecycle(c, s.Engine.StopStrategy, "stopped") }
func (s *Server) pauseStrategy(c *gin.Context)  { s.lifecycle(c, s.Engine.PauseStrategy, "paused") }
func (s *Server) resumeStrategy(c *gin.Context) { s.lifecycle(c, s.Engine.ResumeStrategy, "resumed") }

func (s *Server) lifecycle(c *gin.Context, op func(context.Context, string) error, verb string) {
	name := c.Param("name")
	if err := op(c.Request.Context(), name); err != nil {
		status, code := statusForEngineError(err)
		respondError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "status": verb})
}

// ----- positions and trading state -----

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.Engine.OpenPositions(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) closePosition(c *gin.Context) {
	ticket, err := strconv.ParseInt(c.Param("ticket"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_TICKET", "ticket must be an integer")
		return
	}
	if err := s.Engine.ClosePosition(c.Request.Context(), ticket); err != nil {
		respondError(c, http.StatusInternalServerError, "CLOSE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket, "status": "closed"})
}

func (s *Server) closeAllPositions(c *gin.Context) {
	n, err := s.Engine.CloseAllPositions(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "CLOSE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": n})
}

func (s *Server) getStatistics(c *gin.Context) {
	stats, err := s.Engine.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getRiskSummary(c *gin.Context) {
	summary, err := s.Engine.RiskSummary(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getAccount(c *gin.Context) {
	info, err := s.Engine.AccountInfo(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "BROKER_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) getOrders(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	orders, err := s.Engine.OrderHistory(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getTradeHistory(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	trades, err := s.DB.ListTrades(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, trades)
}

// ----- market data -----

func (s *Server) getCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "MISSING_SYMBOL", "symbol query parameter is required")
		return
	}
	tf, err := market.ParseTimeframe(c.DefaultQuery("timeframe", string(market.TimeframeM1)))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_TIMEFRAME", err.Error())
		return
	}
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_COUNT", "count must be a positive integer")
		return
	}
	if count > 1000 {
		count = 1000
	}

	candles, err := s.Engine.Candles(c.Request.Context(), symbol, tf, count)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": tf,
		"candles":   candles,
	})
}

func (s *Server) getQuote(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		respondError(c, http.StatusBadRequest, "MISSING_SYMBOL", "symbol query parameter is required")
		return
	}
	q, err := s.Engine.LatestQuote(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, http.StatusNotFound, "NO_QUOTE", err.Error())
		return
	}
	c.JSON(http.StatusOK, q)
}

// ----- system -----

func (s *Server) getSystemStatus(c *gin.Context) {
	paper, err := s.Engine.PaperTrading(c.Request.Context())
	if err != nil {
		paper = s.Meta.Paper
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "running",
		"paper":          paper,
		"symbols":        s.Meta.Symbols,
		"use_mock_feed":  s.Meta.UseMockFeed,
		"version":        s.Meta.Version,
		"uptime_seconds": s.Engine.Uptime().Seconds(),
	})
}

// setPaperTrading toggles order flow between the paper and live brokers.
func (s *Server) setPaperTrading(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "body must carry an \"enabled\" boolean")
		return
	}
	if err := s.Engine.SetPaperTrading(c.Request.Context(), *req.Enabled); err != nil {
		respondError(c, http.StatusConflict, "BROKER_SWITCH_REFUSED", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"paper": *req.Enabled})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusNotFound, "METRICS_DISABLED", "metrics collection is disabled")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}
