package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/queue"
)

// MetaTransactionRelayer submits a signed delegate action on-chain through
// a funding signer.
type MetaTransactionRelayer interface {
	RelayDelegateAction(ctx context.Context, signed *chain.SignedDelegateAction) (*chain.ExecutionOutcome, error)
}

// RelayStage 阶段 4：附加签名并经中继方上链
type RelayStage struct {
	relayer MetaTransactionRelayer
}

// NewRelayStage creates the relay stage.
func NewRelayStage(relayer MetaTransactionRelayer) *RelayStage {
	return &RelayStage{relayer: relayer}
}

func (s *RelayStage) Handle(ctx context.Context, job *queue.Job) ([]queue.Message, error) {
	var payload RelayJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid relay payload")
	}

	envelope, err := chain.DeserializeDelegateAction(payload.DelegateAction)
	if err != nil {
		return nil, err
	}

	rawSignature, err := hex.DecodeString(payload.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "invalid signature hex")
	}

	signature, err := chain.SignatureFromRaw(rawSignature)
	if err != nil {
		return nil, err
	}

	signed := &chain.SignedDelegateAction{
		DelegateAction: envelope,
		Signature:      signature,
	}

	outcome, err := s.relayer.RelayDelegateAction(ctx, signed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to relay delegate action")
	}

	if outcome.Status.Failed() {
		// Executed but failed on chain: terminal, keep hash and failure
		// status for audit.
		return nil, &chain.FailureError{
			TransactionHash: outcome.TransactionHash,
			Failure:         outcome.Status.Failure,
		}
	}

	log.Info().
		Str("transaction_hash", outcome.TransactionHash).
		Str("sender_id", envelope.SenderID).
		Msg("Delegate action relayed")

	return nil, nil
}
