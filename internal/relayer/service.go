// Package relayer submits signed delegate actions on-chain through a pool
// of funding-account signers. It serves both the migration pipeline's
// relay stage and the live relayer HTTP service.
package relayer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/metrics"
)

// Service 交易中继服务
type Service struct {
	chain        chain.Provider
	pool         *SignerPool
	blockHashTTL time.Duration

	mu         sync.Mutex
	cachedHash [32]byte
	cachedAt   time.Time

	now func() time.Time
}

// NewService creates the relay service. The recent block hash is cached
// and refreshed only when older than blockHashTTL, to bound RPC load.
func NewService(provider chain.Provider, pool *SignerPool, blockHashTTL time.Duration) *Service {
	return &Service{
		chain:        provider,
		pool:         pool,
		blockHashTTL: blockHashTTL,
		now:          time.Now,
	}
}

func (s *Service) recentBlockHash(ctx context.Context) ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cachedAt.IsZero() && s.now().Sub(s.cachedAt) < s.blockHashTTL {
		return s.cachedHash, nil
	}

	hash, err := s.chain.RecentBlockHash(ctx)
	if err != nil {
		return [32]byte{}, err
	}

	s.cachedHash = hash
	s.cachedAt = s.now()

	return hash, nil
}

// RelayDelegateAction wraps the signed delegate action in a transaction
// funded by the next pool signer and broadcasts it. The returned outcome
// may still carry an on-chain failure status; classifying that is the
// caller's concern.
func (s *Service) RelayDelegateAction(ctx context.Context, signed *chain.SignedDelegateAction) (*chain.ExecutionOutcome, error) {
	signer := s.pool.Checkout()
	defer s.pool.Release(signer)

	signer.Lock()
	defer signer.Unlock()

	nonce, err := s.chain.AccessKeyNonce(ctx, signer.AccountID, signer.PublicKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query nonce of signer %s", signer.AccountID)
	}

	blockHash, err := s.recentBlockHash(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch recent block hash")
	}

	tx := chain.Transaction{
		SignerID:   signer.AccountID,
		PublicKey:  signer.PublicKey,
		Nonce:      nonce + 1,
		ReceiverID: signed.DelegateAction.SenderID,
		BlockHash:  blockHash,
		Actions:    []chain.Action{chain.DelegateOf(*signed)},
	}

	signedTx, err := tx.SignWith(signer.Key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign relaying transaction")
	}

	outcome, err := s.chain.BroadcastTransaction(ctx, &signedTx)
	if err != nil {
		metrics.RelayedTransactions.WithLabelValues("failure").Inc()
		return nil, err
	}

	status := "success"
	if outcome.Status.Failed() {
		status = "failure"
	}
	metrics.RelayedTransactions.WithLabelValues(status).Inc()

	log.Debug().
		Str("signer_id", signer.AccountID).
		Str("receiver_id", signed.DelegateAction.SenderID).
		Str("transaction_hash", outcome.TransactionHash).
		Str("status", status).
		Msg("Relayed meta transaction")

	return outcome, nil
}
