package httpmiddleware

import (
	"errors"
	"fmt"
	"net/http"

	"DocQA/backend/go/pkg/circuitbreaker"
	"DocQA/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RateLimit rejects requests with 429 once the client's bucket is empty.
// Clients are keyed by gin's ClientIP.
func RateLimit(limiter *ratelimiter.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// CircuitBreak applies the circuit breaker to the handler chain.
// Responses with status >= 500 count as failures.
func CircuitBreak(breaker circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := breaker.Execute(func() error {
			c.Next()
			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				return fmt.Errorf("server error: status code %d", status)
			}
			return nil
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable: circuit breaker is open"})
		}
	}
}
