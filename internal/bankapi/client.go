// Package bankapi fetches account transaction history from bank APIs.
package bankapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nimasrn/bank-reconciler/internal/model"
	"github.com/nimasrn/bank-reconciler/pkg/logger"
	"github.com/nimasrn/bank-reconciler/pkg/prom"
	"github.com/valyala/fasthttp"
)

var (
	ErrUnknownBank = errors.New("unknown bank code")
	ErrCircuitOpen = errors.New("bank circuit open")
	ErrRejected    = errors.New("bank rejected request")
)

type Metrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	ConsecutiveFails atomic.Int32
	LastSuccessTime  atomic.Int64
	LastErrorTime    atomic.Int64
}

func (m *Metrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessTime.Store(time.Now().Unix())
}

func (m *Metrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
	m.LastErrorTime.Store(time.Now().Unix())
}

func (m *Metrics) AvgLatencyMs() int64 {
	ok := m.SuccessfulReqs.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

func (m *Metrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

type Bank struct {
	code             string
	url              string
	client           *fasthttp.Client
	metrics          *Metrics
	circuitOpenUntil atomic.Int64
}

func newBank(code, url string, client *fasthttp.Client) *Bank {
	return &Bank{code: code, url: url, client: client, metrics: &Metrics{}}
}

// Available is false while the circuit breaker is open.
func (b *Bank) Available() bool {
	return time.Now().UnixNano() >= b.circuitOpenUntil.Load()
}

type BankConfig struct {
	Code string
	URL  string
}

type Config struct {
	Banks                   []BankConfig
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	// Dial overrides the connection dialer. Tests use an in-memory listener.
	Dial fasthttp.DialFunc
}

type Client struct {
	config *Config
	banks  map[string]*Bank
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = time.Minute
	}

	c := &Client{config: config, banks: make(map[string]*Bank, len(config.Banks))}
	for _, bc := range config.Banks {
		if bc.Code == "" || bc.URL == "" {
			return nil, fmt.Errorf("bank code and url are required, got %q=%q", bc.Code, bc.URL)
		}
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                config.Dial,
		}
		c.banks[bc.Code] = newBank(bc.Code, bc.URL, httpClient)
		logger.Info("bank api configured", "bank", bc.Code, "url", bc.URL)
	}
	return c, nil
}

type historyResponse struct {
	Status       string                 `json:"status,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Transactions []model.RawTransaction `json:"transactions"`
}

// FetchTransactionHistory returns the account history reported by the bank.
// Network errors and 5xx responses are retried; 4xx responses are not.
func (c *Client) FetchTransactionHistory(ctx context.Context, bankCode, account, token string) ([]model.RawTransaction, error) {
	bank, ok := c.banks[bankCode]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", model.ErrValidation, ErrUnknownBank, bankCode)
	}
	if account == "" {
		return nil, fmt.Errorf("%w: account number is required", model.ErrValidation)
	}

	path := "/api/v1/accounts/" + url.PathEscape(account) + "/transactions"

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		if !bank.Available() {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, bankCode)
		}

		started := time.Now()
		body, status, err := c.doRequest(ctx, bank, fasthttp.MethodGet, path, token)
		latency := time.Since(started)
		prom.ObserveBankRequest(bankCode, strconv.Itoa(status), latency.Seconds())

		if err != nil {
			bank.metrics.RecordFailure()
			if errors.Is(err, ErrRejected) {
				return nil, err
			}
			c.checkCircuitBreaker(bank)
			lastErr = err
			logger.Warn("bank request failed, retrying", "bank", bankCode, "attempt", attempt+1, "error", err)
			continue
		}
		bank.metrics.RecordSuccess(latency.Milliseconds())

		var resp historyResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		logger.Info("fetched transaction history", "bank", bankCode, "account", account, "count", len(resp.Transactions), "latency_ms", latency.Milliseconds())
		return resp.Transactions, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, bank *Bank, method, path, token string) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(bank.url + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := bank.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusOK:
	case status >= 400 && status < 500:
		return nil, status, fmt.Errorf("%w: status %d, body: %s", ErrRejected, status, resp.Body())
	default:
		return nil, status, fmt.Errorf("unexpected status code: %d, body: %s", status, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return result, status, nil
}

func (c *Client) checkCircuitBreaker(bank *Bank) {
	fails := bank.metrics.ConsecutiveFails.Load()
	if fails >= int32(c.config.CircuitBreakerThreshold) {
		bank.circuitOpenUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).UnixNano())
		logger.Warn("circuit breaker opened", "bank", bank.code, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

type BankStats struct {
	Code             string  `json:"code"`
	Available        bool    `json:"available"`
	TotalRequests    int64   `json:"total_requests"`
	FailedReqs       int64   `json:"failed_requests"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	ConsecutiveFails int32   `json:"consecutive_fails"`
}

func (c *Client) Stats() []BankStats {
	stats := make([]BankStats, 0, len(c.banks))
	for _, b := range c.banks {
		stats = append(stats, BankStats{
			Code:             b.code,
			Available:        b.Available(),
			TotalRequests:    b.metrics.TotalRequests.Load(),
			FailedReqs:       b.metrics.FailedReqs.Load(),
			SuccessRate:      b.metrics.SuccessRate(),
			AvgLatencyMs:     b.metrics.AvgLatencyMs(),
			ConsecutiveFails: b.metrics.ConsecutiveFails.Load(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Code < stats[j].Code })
	return stats
}
