package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/circuitbreaker"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// helper function to create a mock config for testing
func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Middleware: config.MiddlewareConfig{
			RateLimiter: config.RateLimiterConfig{
				Enabled: true,
				TokenBucket: config.TokenBucketConfig{
					Rate:     10,
					Capacity: 5,
				},
			},
			CircuitBreaker: config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 2,
				SuccessThreshold: 2,
				Timeout:          10 * time.Second,
			},
		},
	}
}

func TestNewServer_WithAddress(t *testing.T) {
	srv, err := NewServer(newTestConfig(), nil, WithAddress(":9999"))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if srv.Addr() != ":9999" {
		t.Errorf("Expected server address to be :9999, but got %s", srv.Addr())
	}

	srv, err = NewServer(newTestConfig(), nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if srv.Addr() != defaultAddress {
		t.Errorf("Expected default address, got %s", srv.Addr())
	}
}

func TestNewServer_RejectsBadLimiter(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.TokenBucket.Capacity = 0
	if _, err := NewServer(cfg, nil); err == nil {
		t.Fatal("expected an error for a zero capacity bucket")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.TokenBucket.Capacity = 2
	cfg.Middleware.RateLimiter.TokenBucket.Rate = 0.001

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	srv.Engine().GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL)
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status OK on request %d, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(testServer.URL)
	if err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status TooManyRequests on request 3, got %d", resp.StatusCode)
	}
}

func TestCircuitBreakerMiddlewareAndClient(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.Enabled = false

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	srv.Engine().GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	client, err := NewClient(testServer.URL, time.Second, config.CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		err := client.DoJSON(context.Background(), http.MethodGet, "/fail", nil, nil)
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusInternalServerError || se.Message != "boom" {
			t.Fatalf("request %d: expected a 500 StatusError with message, got %v", i+1, err)
		}
	}

	err = client.DoJSON(context.Background(), http.MethodGet, "/fail", nil, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected the open breaker to answer 503, got %v", err)
	}
}

func TestClientBreakerOpens(t *testing.T) {
	calls := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	client, err := NewClient(backend.URL, time.Second, config.CircuitBreakerConfig{
		Enabled: true, FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := client.DoJSON(context.Background(), http.MethodGet, "/", nil, nil); err == nil {
		t.Fatal("expected an error for 502")
	}
	err = client.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 backend call, got %d", calls)
	}
}

func TestClientDecodesJSON(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"42"}`))
	}))
	defer backend.Close()

	client, err := NewClient(backend.URL+"/", time.Second, config.CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	var out struct {
		Answer string `json:"answer"`
	}
	if err := client.DoJSON(context.Background(), http.MethodPost, "/ask", map[string]string{"question": "q"}, &out); err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if out.Answer != "42" {
		t.Errorf("expected 42, got %q", out.Answer)
	}
}
