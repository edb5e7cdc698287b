package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, urls ...string) *EndpointPool {
	t.Helper()

	pool, err := NewEndpointPool(urls, time.Millisecond, 1)
	require.NoError(t, err)
	pool.jitterN = func(_ int64) int64 { return 0 }

	return pool
}

func TestRetryPolicyReturnsBusinessErrorsImmediately(t *testing.T) {
	pool := newTestPool(t, "https://rpc-a.example.com", "https://rpc-b.example.com")
	policy := NewRetryPolicy(pool, 3)

	handlerErr := &Error{Name: "HANDLER_ERROR", Message: "unknown access key"}
	calls := 0

	err := policy.Do(context.Background(), "query", func(_ context.Context, _ string) error {
		calls++
		return handlerErr
	})

	require.ErrorIs(t, err, handlerErr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "https://rpc-a.example.com", pool.ActiveEndpoint())
}

func TestRetryPolicyRetriesTransientFailures(t *testing.T) {
	pool := newTestPool(t, "https://rpc-a.example.com", "https://rpc-b.example.com")
	policy := NewRetryPolicy(pool, 3)

	var endpoints []string

	err := policy.Do(context.Background(), "query", func(_ context.Context, endpoint string) error {
		endpoints = append(endpoints, endpoint)
		if len(endpoints) < 3 {
			return &ServerError{Endpoint: endpoint, Status: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"https://rpc-a.example.com", "https://rpc-b.example.com", "https://rpc-a.example.com"}, endpoints)
}

func TestRetryPolicyExhaustedRateLimits(t *testing.T) {
	pool := newTestPool(t, "https://rpc-a.example.com", "https://rpc-b.example.com")
	pool.now = func() time.Time { return time.Unix(1700000000, 0) }
	policy := NewRetryPolicy(pool, 2)

	calls := 0
	err := policy.Do(context.Background(), "send_tx", func(_ context.Context, endpoint string) error {
		calls++
		return &RateLimitError{Endpoint: endpoint}
	})

	require.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyExhaustedTransientKeepsLastError(t *testing.T) {
	pool := newTestPool(t, "https://rpc-a.example.com")
	policy := NewRetryPolicy(pool, 1)

	cause := errors.New("connection refused")
	err := policy.Do(context.Background(), "block", func(_ context.Context, endpoint string) error {
		return &TransportError{Endpoint: endpoint, Err: cause}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRateLimitExceeded)
}

func TestDoFixedNeverRotates(t *testing.T) {
	pool := newTestPool(t, "https://rpc-a.example.com", "https://rpc-b.example.com")
	policy := NewRetryPolicy(pool, 2)

	calls := 0
	err := policy.DoFixed(context.Background(), "account_index", func(_ context.Context) error {
		calls++
		if calls < 2 {
			return &ServerError{Status: 502}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "https://rpc-a.example.com", pool.ActiveEndpoint())
}
