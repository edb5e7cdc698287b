package pipeline

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/queue"
)

// ChainReader is the read-only chain surface Stage 2 needs.
type ChainReader interface {
	AccountsByPublicKey(ctx context.Context, publicKey chain.PublicKey) ([]string, error)
	AccessKeyNonce(ctx context.Context, accountID string, publicKey chain.PublicKey) (uint64, error)
	HasFullAccessKey(ctx context.Context, accountID string, publicKey chain.PublicKey) (bool, error)
	MaxBlockHeight(ctx context.Context) (uint64, error)
}

// ProvisionStage 阶段 2：为旧密钥控制的每个账户构建"添加全权限密钥"元交易
type ProvisionStage struct {
	chain ChainReader
}

// NewProvisionStage creates the access-key provisioning stage.
func NewProvisionStage(reader ChainReader) *ProvisionStage {
	return &ProvisionStage{chain: reader}
}

// Handle is safe to re-run after a partial prior run: accounts already
// holding a derived key with full access emit no signing job.
func (s *ProvisionStage) Handle(ctx context.Context, job *queue.Job) ([]queue.Message, error) {
	var payload ProvisionJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid provision payload")
	}

	oldKey, err := chain.ParsePublicKey(payload.OldPublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid old public key")
	}

	newKeys := make([]chain.PublicKey, 0, len(payload.NewPublicKeys))
	for _, encoded := range payload.NewPublicKeys {
		pk, err := chain.ParsePublicKey(encoded)
		if err != nil {
			return nil, errors.Wrap(err, "invalid derived public key")
		}

		newKeys = append(newKeys, pk)
	}

	accounts, err := s.chain.AccountsByPublicKey(ctx, oldKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up accounts by public key")
	}
	accounts = appendMissing(accounts, oldKey.ImplicitAccountID())

	maxBlockHeight, err := s.chain.MaxBlockHeight(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query max block height")
	}

	var out []queue.Message

	for _, account := range accounts {
		nonce, err := s.chain.AccessKeyNonce(ctx, account, oldKey)
		if err != nil {
			if errors.Is(err, chain.ErrAccessKeyNotFound) {
				// The legacy key was already removed from this account;
				// nothing to authorize with, move on.
				log.Info().
					Str("account_id", account).
					Str("old_public_key", oldKey.String()).
					Msg("Legacy key absent on account, skipping")
				continue
			}

			return nil, errors.Wrapf(err, "failed to query nonce on %s", account)
		}

		for _, newKey := range newKeys {
			held, err := s.chain.HasFullAccessKey(ctx, account, newKey)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to check full-access key on %s", account)
			}
			if held {
				log.Info().
					Str("account_id", account).
					Str("new_public_key", newKey.String()).
					Msg("Account already holds derived key, skipping")
				continue
			}

			nonce++

			envelope := chain.DelegateAction{
				SenderID:       account,
				ReceiverID:     account,
				Actions:        []chain.Action{chain.AddFullAccessKey(newKey)},
				Nonce:          nonce,
				MaxBlockHeight: maxBlockHeight,
				PublicKey:      oldKey,
			}

			serialized, err := envelope.Serialize()
			if err != nil {
				return nil, err
			}

			out = append(out, queue.Message{
				Queue: QueueSign,
				Payload: SignJob{
					DelegateAction: serialized,
					Token:          payload.Token,
				},
			})
		}
	}

	log.Info().
		Str("old_public_key", oldKey.String()).
		Int("accounts", len(accounts)).
		Int("grants", len(out)).
		Msg("Access-key provisioning complete")

	return out, nil
}

func appendMissing(accounts []string, account string) []string {
	for _, existing := range accounts {
		if existing == account {
			return accounts
		}
	}

	return append(accounts, account)
}
