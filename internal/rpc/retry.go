package rpc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RetryPolicy retries transient failures across the endpoint pool. It is an
// explicit object rather than behavior buried in call sites so it can be
// exercised on its own.
type RetryPolicy struct {
	pool    *EndpointPool
	retries int
}

// NewRetryPolicy creates a policy performing at most retries additional
// attempts after the first.
func NewRetryPolicy(pool *EndpointPool, retries int) *RetryPolicy {
	if retries < 0 {
		retries = 0
	}

	return &RetryPolicy{pool: pool, retries: retries}
}

// Do runs fn against the pool's active endpoint, retrying transient
// failures. Each retry first asks the pool to (conditionally) fail over,
// then waits out the backoff before reissuing against the now-current
// endpoint. Non-transient errors are returned unchanged on first sight.
// Exhausting retries on rate limits surfaces ErrRateLimitExceeded;
// exhausting them on other transient faults surfaces the last error.
func (r *RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context, endpoint string) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.retries; attempt++ {
		endpoint := r.pool.ActiveEndpoint()

		err := fn(ctx, endpoint)
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			return err
		}

		lastErr = err
		rateLimited := IsRateLimited(err)
		rotated := r.pool.Failover(rateLimited)

		log.Debug().
			Str("op", op).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Bool("rate_limited", rateLimited).
			Bool("rotated", rotated).
			Err(err).
			Msg("Transient RPC failure, backing off")

		if attempt < r.retries {
			if err := r.pool.AwaitBackoff(ctx, attempt); err != nil {
				return err
			}
		}
	}

	if IsRateLimited(lastErr) {
		return errors.Wrapf(ErrRateLimitExceeded, "%s failed after %d attempts", op, r.retries+1)
	}

	return errors.Wrapf(lastErr, "%s failed after %d attempts", op, r.retries+1)
}

// DoFixed behaves like Do but never rotates the pool, for calls that do not
// go through the pooled endpoints (e.g. the account index).
func (r *RetryPolicy) DoFixed(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.retries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			return err
		}

		lastErr = err

		if attempt < r.retries {
			if err := r.pool.AwaitBackoff(ctx, attempt); err != nil {
				return err
			}
		}
	}

	if IsRateLimited(lastErr) {
		return errors.Wrapf(ErrRateLimitExceeded, "%s failed after %d attempts", op, r.retries+1)
	}

	return errors.Wrapf(lastErr, "%s failed after %d attempts", op, r.retries+1)
}
