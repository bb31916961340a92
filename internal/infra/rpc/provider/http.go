package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/fundwatch/internal/indexing/metrics"
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	Name     string
	Endpoint string
	Timeout  time.Duration
	// RateLimit caps requests per second; 0 disables the limiter.
	RateLimit float64
	// Chain labels the provider metrics.
	Chain string
}

// HTTPProvider implements RPCProvider for JSON-RPC over HTTP.
type HTTPProvider struct {
	name       string
	chain      string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	throttle   *throttleState

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &HTTPProvider{
		name:     cfg.Name,
		chain:    cfg.Chain,
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  limiter,
		throttle: newThrottleState(),
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call makes a single JSON-RPC call.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := p.post(ctx, method, rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.recordFailure(method, "parse")
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != nil {
		if isThrottleMessage(resp.Error.Message) {
			p.throttle.record(429, "")
			p.recordFailure(method, "throttled")
			return nil, fmt.Errorf("throttle in rpc error: %w", resp.Error)
		}
		p.recordFailure(method, "rpc")
		return nil, resp.Error
	}
	return resp.Result, nil
}

// BatchCall makes multiple RPC calls in one request. Responses are returned in
// request order regardless of the order the endpoint answered in.
func (p *HTTPProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	batch := make([]rpcRequest, len(requests))
	for i, r := range requests {
		params := r.Params
		if params == nil {
			params = []any{}
		}
		batch[i] = rpcRequest{JSONRPC: "2.0", Method: r.Method, Params: params, ID: i + 1}
	}

	body, err := p.post(ctx, "batch", batch)
	if err != nil {
		return nil, err
	}

	var raw []rpcResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		p.recordFailure("batch", "parse")
		return nil, fmt.Errorf("parse batch response: %w", err)
	}

	responses := make([]BatchResponse, len(requests))
	for i := range responses {
		responses[i].Error = fmt.Errorf("missing response for request %d", i+1)
	}
	for _, r := range raw {
		idx := r.ID - 1
		if idx < 0 || idx >= len(responses) {
			continue
		}
		if r.Error != nil {
			responses[idx] = BatchResponse{Error: r.Error}
		} else {
			responses[idx] = BatchResponse{Result: r.Result}
		}
	}
	return responses, nil
}

// post sends payload and returns the body of a 200 response.
func (p *HTTPProvider) post(ctx context.Context, method string, payload any) ([]byte, error) {
	if wait := p.throttle.remaining(); wait > 0 {
		return nil, fmt.Errorf("provider throttled, retry after: %v", wait)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(p.chain, p.name, method).Inc()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure(method, "network")
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	metrics.RPCLatency.WithLabelValues(p.chain, p.name, method).Observe(latency.Seconds())

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		p.throttle.record(resp.StatusCode, retryAfter)
		p.recordFailure(method, "throttled")
		return nil, fmt.Errorf("rate limited (429), retry after: %s", retryAfter)
	}
	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		p.throttle.record(resp.StatusCode, "")
		p.recordFailure(method, "blocked")
		return nil, fmt.Errorf("ip blocked (403)")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordFailure(method, "network")
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		p.recordFailure(method, "http")
		if isThrottleMessage(string(body)) {
			return nil, fmt.Errorf("throttle detected in response: %s", string(body))
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	p.recordSuccess(latency)
	return body, nil
}

// GetName returns the provider's name.
func (p *HTTPProvider) GetName() string {
	return p.name
}

// GetHealth returns the provider's health status.
func (p *HTTPProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.health
	h.ThrottledFor = p.throttle.remaining()
	return h
}

// IsAvailable reports whether the provider is neither throttled nor failing most calls.
func (p *HTTPProvider) IsAvailable() bool {
	if p.throttle.remaining() > 0 {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health.Available
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)
}

func (p *HTTPProvider) recordFailure(method, kind string) {
	metrics.RPCErrorsTotal.WithLabelValues(p.chain, p.name, kind).Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)

	// wait for a handful of requests before judging the endpoint
	if p.requestCount >= 5 && p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}
