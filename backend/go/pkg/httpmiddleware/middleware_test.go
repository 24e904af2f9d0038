package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"DocQA/backend/go/pkg/circuitbreaker"
	"DocQA/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(ratelimiter.NewKeyed(func() ratelimiter.RateLimiter {
		return ratelimiter.NewTokenBucket(0, 2)
	})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/"))
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/"))
}

func TestCircuitBreakOpensOnServerErrors(t *testing.T) {
	r := gin.New()
	r.Use(CircuitBreak(circuitbreaker.New(2, 1, time.Hour)))
	calls := 0
	r.GET("/", func(c *gin.Context) {
		calls++
		c.Status(http.StatusBadGateway)
	})

	assert.Equal(t, http.StatusBadGateway, serve(r, http.MethodGet, "/"))
	assert.Equal(t, http.StatusBadGateway, serve(r, http.MethodGet, "/"))
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/"))
	assert.Equal(t, 2, calls)
}
