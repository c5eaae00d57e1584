package httpclient

// JSON-over-HTTP transport shared by the signer and identity clients.
// Rate limiter + circuit breaker in front of every request, bounded response bodies,
// request/response lines in the file log. Knows nothing about the APIs it talks to.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wave-portal/internal/infra/log"
	"wave-portal/internal/infra/retry"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options for New. Zero values get the defaults below.
type Options struct {
	Name            string // circuit breaker name, shows up in logs
	BaseURL         string
	Timeout         time.Duration
	MaxResponseSize int64
	RatePerSecond   float64
	Burst           int
	Headers         map[string]string
	HTTPClient      *http.Client
}

// Client - base URL, http client, limiter and breaker
type Client struct {
	name            string
	baseURL         string
	httpClient      *http.Client
	rateLimiter     *rate.Limiter
	circuitBreaker  *gobreaker.CircuitBreaker
	maxResponseSize int64
	headers         map[string]string
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = 10 * 1024 * 1024 // 10MB
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		name:            opts.Name,
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		httpClient:      httpClient,
		rateLimiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		circuitBreaker:  NewBreaker(opts.Name),
		maxResponseSize: opts.MaxResponseSize,
		headers:         headers,
	}
}

// NewBreaker - opens after more than 5 consecutive failures, half-opens after 30s
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// 4xx answers mean the service is up
			var he *retry.HTTPError
			if errors.As(err, &he) {
				return he.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.LogWarn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Request - per call options
type Request struct {
	Method   string
	Endpoint string
	Body     interface{}
	Headers  map[string]string
}

// Do sends the request and returns the raw body of a 2xx answer.
// Other statuses come back as *retry.HTTPError carrying the body.
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	requestID := log.GenerateRequestID()
	startTime := time.Now()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var respBody []byte
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		body, err := c.do(ctx, requestID, r, startTime)
		respBody = body
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.LogError("Circuit breaker rejected request",
			zap.String("request_id", requestID),
			zap.String("client", c.name),
			zap.String("endpoint", r.Endpoint),
			zap.Error(err))
	}
	return respBody, err
}

// DoJSON - Do and decode the answer into out (skipped when out is nil)
func (c *Client) DoJSON(ctx context.Context, r Request, out interface{}) error {
	body, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", r.Endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, requestID string, r Request, startTime time.Time) ([]byte, error) {
	var reqBody io.Reader
	if r.Body != nil {
		jsonData, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+r.Endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	log.LogRequest(requestID, method, r.Endpoint, zap.String("client", c.name))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(startTime).Milliseconds(), zap.String("endpoint", r.Endpoint), zap.Error(err))
		return nil, retry.Transient(fmt.Errorf("failed to perform request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	duration := time.Since(startTime).Milliseconds()
	if err != nil {
		log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", r.Endpoint), zap.Error(err))
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", r.Endpoint))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return respBody, nil
}
