package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"terminal-core/internal/monitor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// The API serves one local terminal UI, so the limits are sized for a
// single chatty client: enough headroom for a dashboard refreshing every
// widget, tight enough to stop a runaway polling loop.
const (
	requestsPerSecond = 20
	requestBurst      = 40
	limiterIdleEvict  = 10 * time.Minute

	requestIDHeader = "X-Request-ID"
	requestIDKey    = "RequestID"
)

// rateGate hands out one token bucket per client address and evicts
// buckets that have gone quiet.
type rateGate struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateGate() *rateGate {
	g := &rateGate{buckets: make(map[string]*clientBucket)}
	go g.evictLoop()
	return g
}

func (g *rateGate) allow(ip string) bool {
	g.mu.Lock()
	b, ok := g.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)}
		g.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	g.mu.Unlock()
	return b.limiter.Allow()
}

func (g *rateGate) evictLoop() {
	ticker := time.NewTicker(limiterIdleEvict)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleEvict)
		g.mu.Lock()
		for ip, b := range g.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(g.buckets, ip)
			}
		}
		g.mu.Unlock()
	}
}

func rateLimit() gin.HandlerFunc {
	gate := newRateGate()
	return func(c *gin.Context) {
		if !gate.allow(c.ClientIP()) {
			log.Printf("api: rate limit tripped by %s", c.ClientIP())
			respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

// cors admits the terminal UI, which runs from its own local origin
// (packaged shell or a dev server). The Origin header is echoed back
// rather than wildcarded so credentialed requests keep working.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestTag gives every request an id for log correlation. A
// client-supplied X-Request-ID wins so UI logs line up with ours.
func requestTag() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// requestTimeout bounds handler time. gin cannot kill the handler
// goroutine, but cancelling its context unblocks any engine command it
// is waiting on.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
		case p := <-panicked:
			log.Printf("api: handler panic: %v", p)
			respondError(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
			c.Abort()
		case <-ctx.Done():
			log.Printf("api: %s %s timed out", c.Request.Method, c.Request.URL.Path)
			respondError(c, http.StatusRequestTimeout, "TIMEOUT", "request took too long")
			c.Abort()
		}
	}
}

// requestLogger writes one line per request and feeds the API latency
// histogram and error counters.
func requestLogger(metrics *monitor.SystemMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		if metrics != nil {
			metrics.IncrementAPI()
			metrics.APILatency.RecordDuration(latency)
			if status >= 400 {
				metrics.IncrementAPIErrors()
			}
		}
		log.Printf("api: %s %s %s %d %v %s",
			shortID(c.GetString(requestIDKey)), c.Request.Method, c.Request.URL.Path,
			status, latency, c.ClientIP())
	}
}

func shortID(id string) string {
	switch {
	case id == "":
		return "-"
	case len(id) > 8:
		return id[:8]
	}
	return id
}
