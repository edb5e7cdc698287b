package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const rateLimitStatus = http.StatusTooManyRequests

// Client JSON-RPC 2.0 客户端，经由端点池发送请求并按策略重试
type Client struct {
	pool   *EndpointPool
	policy *RetryPolicy
	http   *http.Client
}

// NewClient creates a JSON-RPC client on top of the endpoint pool.
func NewClient(pool *EndpointPool, retries int, timeout time.Duration) *Client {
	return &Client{
		pool:   pool,
		policy: NewRetryPolicy(pool, retries),
		http:   &http.Client{Timeout: timeout},
	}
}

// Policy exposes the client's retry policy for callers issuing non-pooled
// HTTP requests with the same semantics.
func (c *Client) Policy() *RetryPolicy {
	return c.policy
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Call invokes the given method and unmarshals the result. Transient
// failures (network faults, 5xx, 429, RPC internal errors) are retried
// across the pool; handler errors are returned as *Error immediately.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	return c.policy.Do(ctx, method, func(ctx context.Context, endpoint string) error {
		return c.call(ctx, endpoint, method, params, result)
	})
}

func (c *Client) call(ctx context.Context, endpoint, method string, params any, result any) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      "go-migrate",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == rateLimitStatus {
		return &RateLimitError{Endpoint: endpoint}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}

	if res.StatusCode != http.StatusOK {
		return &ServerError{Endpoint: endpoint, Status: res.StatusCode, Body: string(raw)}
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", method)
	}

	if parsed.Error != nil {
		return parsed.Error
	}

	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return errors.Wrapf(err, "failed to decode %s result", method)
		}
	}

	return nil
}
