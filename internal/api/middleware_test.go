package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestTag())
	r.Use(rateLimit())
	r.Use(cors())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestRequestTagEchoesClientID(t *testing.T) {
	r := newMiddlewareRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "ui-trace-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "ui-trace-123", w.Header().Get(requestIDHeader))

	// Without a client id the server mints one.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestCORSEchoesOriginAndAnswersPreflight(t *testing.T) {
	r := newMiddlewareRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimitTripsOnBurst(t *testing.T) {
	r := newMiddlewareRouter()

	limited := 0
	for i := 0; i < requestBurst*2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.1.2.3:5000"
		r.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.NotZero(t, limited, "a burst past the bucket must see 429s")
}

func TestRequestTimeoutCancelsSlowHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestTimeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) { time.Sleep(300 * time.Millisecond) })

	w := httptest.NewRecorder()
	start := time.Now()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "response must not wait for the handler")
}
