// Package rpc is the JSON-RPC client used by chain adapters.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/fundwatch/internal/infra/rpc/provider"
	"github.com/vietddude/fundwatch/internal/infra/rpc/routing"
)

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	chainID   string
	providers []provider.RPCProvider
	retry     routing.RetryConfig
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg routing.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a client that fails over across providers in order.
func NewClient(chainID string, providers []provider.RPCProvider, opts ...Option) *Client {
	c := &Client{
		chainID:   chainID,
		providers: providers,
		retry:     routing.DefaultRetryConfig,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call makes an RPC call with automatic failover and retry.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	return routing.CallWithFailover(ctx, c.providers, method, params, c.retry)
}

// CallInto makes an RPC call and decodes the result into out.
func (c *Client) CallInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// BatchCall sends requests to the first available provider that answers.
func (c *Client) BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error) {
	if len(c.providers) == 0 {
		return nil, routing.ErrNoProviders
	}
	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable() {
			continue
		}
		resp, err := p.BatchCall(ctx, requests)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if routing.ClassifyError(err) == routing.ActionFatal {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no available provider for chain %s", c.chainID)
	}
	return nil, fmt.Errorf("batch call failed: %w", lastErr)
}

// ProviderHealth returns the health of every configured provider by name.
func (c *Client) ProviderHealth() map[string]provider.HealthStatus {
	out := make(map[string]provider.HealthStatus, len(c.providers))
	for _, p := range c.providers {
		out[p.GetName()] = p.GetHealth()
	}
	return out
}

// Close closes every provider.
func (c *Client) Close() error {
	for _, p := range c.providers {
		_ = p.Close()
	}
	return nil
}
