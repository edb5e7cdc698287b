package rpc

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/config"
)

// EndpointPool owns the ordered list of RPC endpoint URLs and the shared
// "current endpoint" pointer all in-flight callers observe. Rotation is
// global: a failover moves every caller to the next endpoint.
type EndpointPool struct {
	mu           sync.Mutex
	endpoints    []string
	current      int
	lastRotation time.Time

	baseWait   time.Duration
	multiplier int

	// injected in tests
	now     func() time.Time
	jitterN func(n int64) int64
}

// NewEndpointPool validates the URL list and returns a pool starting at the
// first endpoint.
func NewEndpointPool(urls []string, baseWait time.Duration, multiplier int) (*EndpointPool, error) {
	if err := config.ValidateEndpointURLs(urls); err != nil {
		return nil, err
	}

	if multiplier < 1 {
		multiplier = 1
	}

	return &EndpointPool{
		endpoints:  append([]string(nil), urls...),
		baseWait:   baseWait,
		multiplier: multiplier,
		now:        time.Now,
		jitterN:    rand.Int63n,
	}, nil
}

// ActiveEndpoint returns the endpoint all callers should currently use.
func (p *EndpointPool) ActiveEndpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.endpoints[p.current]
}

// Size returns the number of endpoints in the pool.
func (p *EndpointPool) Size() int {
	return len(p.endpoints)
}

// Failover advances the current index modulo the pool size and reports
// whether a rotation happened. A pool of size 1 never rotates. When the
// failover is triggered by a rate-limit error the rotation is itself rate
// limited: it only happens if at least baseWait has elapsed since the last
// rotation, so a burst of rate-limit errors from many concurrent callers
// does not thrash the whole pool.
func (p *EndpointPool) Failover(rateLimited bool) bool {
	if len(p.endpoints) < 2 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if rateLimited && p.now().Sub(p.lastRotation) < p.baseWait {
		return false
	}

	previous := p.endpoints[p.current]
	p.current = (p.current + 1) % len(p.endpoints)
	p.lastRotation = p.now()

	log.Warn().
		Str("previous_endpoint", previous).
		Str("current_endpoint", p.endpoints[p.current]).
		Bool("rate_limited", rateLimited).
		Msg("Rotated RPC endpoint")

	return true
}

// Backoff returns the wait before retry attempt n:
// base_wait * (n+1) * multiplier plus a uniform jitter in [0, base_wait)
// to desynchronize concurrent callers.
func (p *EndpointPool) Backoff(attempt int) time.Duration {
	wait := p.baseWait * time.Duration(attempt+1) * time.Duration(p.multiplier)
	if p.baseWait > 0 {
		wait += time.Duration(p.jitterN(int64(p.baseWait)))
	}

	return wait
}

// AwaitBackoff sleeps for the attempt's backoff or until the context is
// cancelled.
func (p *EndpointPool) AwaitBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
