package api

import (
	"net/http"
	"time"

	"terminal-core/internal/engine"
	"terminal-core/internal/events"
	"terminal-core/internal/monitor"
	"terminal-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires the HTTP surface around the engine and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Engine    *engine.Engine
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Paper       bool
	Symbols     []string
	UseMockFeed bool
	Version     string
}

func NewServer(bus *events.Bus, database *db.Database, eng *engine.Engine, metrics *monitor.SystemMetrics, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(requestTag())
	r.Use(requestLogger(metrics))
	r.Use(rateLimit())
	r.Use(cors())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Engine:    eng,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Long-lived endpoints stay outside the request timeout.
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api", requestTimeout(30*time.Second))
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/strategies", s.listStrategies)
			protected.POST("/strategies", s.registerStrategy)
			protected.GET("/strategies/:name", s.getStrategy)
			protected.DELETE("/strategies/:name", s.unregisterStrategy)

			// Strategy lifecycle
			protected.POST("/strategies/:name/start", s.startStrategy)
			protected.POST("/strategies/:name/stop", s.stopStrategy)
			protected.POST("/strategies/:name/pause", s.pauseStrategy)
			protected.POST("/strategies/:name/resume", s.resumeStrategy)

			// Positions and trading state
			protected.GET("/positions", s.getPositions)
			protected.POST("/positions/:ticket/close", s.closePosition)
			protected.POST("/positions/close-all", s.closeAllPositions)
			protected.GET("/statistics", s.getStatistics)
			protected.GET("/risk", s.getRiskSummary)
			protected.GET("/account", s.getAccount)
			protected.GET("/orders", s.getOrders)
			protected.GET("/history", s.getTradeHistory)
			protected.POST("/system/paper", s.setPaperTrading)

			// Market data
			protected.GET("/candles", s.getCandles)
			protected.GET("/quote", s.getQuote)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
