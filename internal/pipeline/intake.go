package pipeline

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/identity"
	"github/fastauth/go-migrate/internal/queue"
)

// TokenMinter mints the operator-issued identity token for a provider pair.
type TokenMinter interface {
	Mint(id *identity.LegacyIdentity, provider identity.Provider) (string, error)
}

// LegacyAuthenticator is the part of the legacy client Stage 1 needs.
type LegacyAuthenticator interface {
	ClaimOidcToken(ctx context.Context, token string) error
	UserCredentials(ctx context.Context, token string) (chain.PublicKey, error)
}

// KeyDeriver resolves the deterministic new key for a provider pair.
type KeyDeriver interface {
	DerivePublicKey(ctx context.Context, providerID, subject string) (chain.PublicKey, error)
}

// IntakeStage 阶段 1：认证旧服务、取回旧凭证、派生所有新密钥
type IntakeStage struct {
	minter  TokenMinter
	legacy  LegacyAuthenticator
	deriver KeyDeriver
}

// NewIntakeStage creates the identity-intake stage.
func NewIntakeStage(minter TokenMinter, legacy LegacyAuthenticator, deriver KeyDeriver) *IntakeStage {
	return &IntakeStage{minter: minter, legacy: legacy, deriver: deriver}
}

// Handle is safe to re-run for the same identity: claiming a token and
// deriving keys are both idempotent.
func (s *IntakeStage) Handle(ctx context.Context, job *queue.Job) ([]queue.Message, error) {
	var payload IntakeJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid intake payload")
	}

	id := payload.Identity
	if len(id.Providers) == 0 {
		log.Warn().
			Str("user_id", id.UserID).
			Msg("Identity has no federated providers, skipping")
		return nil, nil
	}

	token, err := s.minter.Mint(&id, id.Providers[0])
	if err != nil {
		return nil, err
	}

	if err := s.legacy.ClaimOidcToken(ctx, token); err != nil {
		return nil, errors.Wrap(err, "failed to claim identity token")
	}

	oldKey, err := s.legacy.UserCredentials(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch legacy credential")
	}

	newKeys := make([]string, 0, len(id.Providers))
	for _, provider := range id.Providers {
		derived, err := s.deriver.DerivePublicKey(ctx, provider.ProviderID, provider.Subject)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive key for provider %s", provider.ProviderID)
		}

		newKeys = append(newKeys, derived.String())
	}

	log.Info().
		Str("user_id", id.UserID).
		Str("old_public_key", oldKey.String()).
		Int("derived_keys", len(newKeys)).
		Msg("Identity intake complete")

	return []queue.Message{{
		Queue: QueueProvision,
		Payload: ProvisionJob{
			OldPublicKey:  oldKey.String(),
			NewPublicKeys: newKeys,
			Token:         token,
		},
	}}, nil
}
