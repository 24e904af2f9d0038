package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/circuitbreaker"
	"DocQA/backend/go/pkg/httpmiddleware"
	"DocQA/backend/go/pkg/logger"
	"DocQA/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

const defaultAddress = ":8080"

// Server wraps http.Server around a gin engine that already carries the
// recovery, request logging, rate limiting and circuit breaking middleware.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	log        *logger.Logger
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// NewServer creates a Server from cfg. Rate limiting and circuit breaking are
// applied when enabled in cfg.Middleware.
func NewServer(cfg *config.AppConfig, log *logger.Logger, opts ...ServerOption) (*Server, error) {
	if log == nil {
		log = logger.Discard()
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLog(log))

	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		limiter, err := createRateLimiter(rl)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		log.Info(fmt.Sprintf("Enabling rate limiter: %.2f req/s, burst %d", rl.TokenBucket.Rate, rl.TokenBucket.Capacity))
		engine.Use(httpmiddleware.RateLimit(limiter))
	}

	if cb := cfg.Middleware.CircuitBreaker; cb.Enabled {
		breaker, err := createCircuitBreaker(cb)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		log.Info("Enabling circuit breaker middleware")
		engine.Use(httpmiddleware.CircuitBreak(breaker))
	}

	srv := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		log:    log,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = defaultAddress
	}
	return srv, nil
}

// Engine is where routes are registered.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Addr() string { return s.httpServer.Addr }

// ListenAndServe starts the HTTP server. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info(fmt.Sprintf("Starting server on %s", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.With("method", c.Request.Method).
			With("path", c.FullPath()).
			With("status", c.Writer.Status()).
			With("latency_ms", time.Since(start).Milliseconds())
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request served with error")
			return
		}
		entry.Debug("Request served")
	}
}

// createRateLimiter builds one token bucket per client.
func createRateLimiter(cfg config.RateLimiterConfig) (*ratelimiter.Keyed, error) {
	tb := cfg.TokenBucket
	if tb.Rate <= 0 || tb.Capacity <= 0 {
		return nil, fmt.Errorf("token bucket needs a positive rate and capacity, got %v and %d", tb.Rate, tb.Capacity)
	}
	return ratelimiter.NewKeyed(func() ratelimiter.RateLimiter {
		return ratelimiter.NewTokenBucket(tb.Rate, tb.Capacity)
	}), nil
}

// createCircuitBreaker initializes a circuit breaker based on the configuration.
func createCircuitBreaker(cfg config.CircuitBreakerConfig) (circuitbreaker.CircuitBreaker, error) {
	if cfg.FailureThreshold == 0 || cfg.Timeout <= 0 {
		return nil, fmt.Errorf("circuit breaker needs a failure threshold and a timeout")
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.Timeout), nil
}
