package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DocQA/backend/go/internal/config"
	"DocQA/backend/go/pkg/circuitbreaker"
)

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client is a JSON HTTP client with optional circuit breaking.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
	header     http.Header
}

// NewClient creates a Client for baseURL. The breaker is used only when
// enabled in cfg.
func NewClient(baseURL string, timeout time.Duration, cfg config.CircuitBreakerConfig) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		header:     make(http.Header),
	}
	if cfg.Enabled {
		breaker, err := createCircuitBreaker(cfg)
		if err != nil {
			return nil, err
		}
		c.breaker = breaker
	}
	return c, nil
}

// SetHeader adds a header sent with every request made by DoJSON.
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// Do executes an HTTP request with circuit breaker protection.
// It considers status codes >= 500 as failures.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil && resp != nil && resp.StatusCode >= http.StatusInternalServerError {
		// The body still carries the server's message.
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoJSON sends in (if not nil) as the JSON body of a request to path and
// decodes the response into out (if not nil). Error bodies of the form
// {"error": "..."} become the StatusError message.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.header {
		req.Header[k] = v
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
