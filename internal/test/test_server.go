// Package test holds shared helpers for handler and server tests.
package test

import (
	"context"
	"testing"
	"time"

	"github/fastauth/go-migrate/internal/api"
	"github/fastauth/go-migrate/internal/api/router"
	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/config"
)

// ChainStub 可注入的链访问桩
type ChainStub struct {
	OnMaxBlockHeight func(ctx context.Context) (uint64, error)
	OnCallFunction   func(ctx context.Context, contractID, method string, args any) ([]byte, error)
}

func (s *ChainStub) AccessKeyNonce(_ context.Context, _ string, _ chain.PublicKey) (uint64, error) {
	return 0, nil
}

func (s *ChainStub) HasFullAccessKey(_ context.Context, _ string, _ chain.PublicKey) (bool, error) {
	return false, nil
}

func (s *ChainStub) AccountsByPublicKey(_ context.Context, _ chain.PublicKey) ([]string, error) {
	return nil, nil
}

func (s *ChainStub) RecentBlockHash(_ context.Context) ([32]byte, error) {
	return [32]byte{}, nil
}

func (s *ChainStub) MaxBlockHeight(ctx context.Context) (uint64, error) {
	if s.OnMaxBlockHeight != nil {
		return s.OnMaxBlockHeight(ctx)
	}
	return 100, nil
}

func (s *ChainStub) CallFunction(ctx context.Context, contractID, method string, args any) ([]byte, error) {
	if s.OnCallFunction != nil {
		return s.OnCallFunction(ctx, contractID, method, args)
	}
	return nil, nil
}

func (s *ChainStub) BroadcastTransaction(_ context.Context, _ *chain.SignedTransaction) (*chain.ExecutionOutcome, error) {
	return nil, nil
}

// RelayerStub 可注入的中继桩
type RelayerStub struct {
	OnRelay func(ctx context.Context, signed *chain.SignedDelegateAction) (*chain.ExecutionOutcome, error)
}

func (s *RelayerStub) RelayDelegateAction(ctx context.Context, signed *chain.SignedDelegateAction) (*chain.ExecutionOutcome, error) {
	if s.OnRelay != nil {
		return s.OnRelay(ctx, signed)
	}
	return &chain.ExecutionOutcome{TransactionHash: "test-hash"}, nil
}

// DefaultTestConfig returns a config usable without any live dependencies.
func DefaultTestConfig() config.Service {
	return config.Service{
		RPC: config.RPC{
			EndpointURLs:      []string{"https://rpc.test.invalid"},
			RetryCount:        0,
			BaseWait:          time.Millisecond,
			BackoffMultiplier: 1,
			RequestTimeout:    time.Second,
			BlockHeightMargin: 100,
		},
		Relayer: config.Relayer{
			BlockHashTTL:  time.Second,
			ListenAddress: "127.0.0.1:0",
		},
		Logger: config.Logger{Level: "warn"},
	}
}

// WithTestServer runs the closure against a fully routed server with stubbed
// chain and relayer components.
func WithTestServer(t *testing.T, closure func(s *api.Server)) {
	t.Helper()

	s := api.NewServer(DefaultTestConfig())
	s.Chain = &ChainStub{}
	s.Relayer = &RelayerStub{}

	router.Init(s)

	closure(s)
}
