package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/queue"
)

// DelegateSigner requests a legacy co-signature over serialized
// delegate-action bytes.
type DelegateSigner interface {
	SignDelegateAction(ctx context.Context, token string, delegateAction []byte) ([]byte, error)
}

// SignStage 阶段 3：请求旧服务对元交易共签
type SignStage struct {
	signer DelegateSigner
}

// NewSignStage creates the signing stage.
func NewSignStage(signer DelegateSigner) *SignStage {
	return &SignStage{signer: signer}
}

// Handle must run at most once per envelope: the nonce inside is consumed
// by the eventual relay. The queue guarantees this job was enqueued exactly
// once by Stage 2.
func (s *SignStage) Handle(ctx context.Context, job *queue.Job) ([]queue.Message, error) {
	var payload SignJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid sign payload")
	}

	rawSignature, err := s.signer.SignDelegateAction(ctx, payload.Token, payload.DelegateAction)
	if err != nil {
		return nil, errors.Wrap(err, "failed to obtain legacy co-signature")
	}

	log.Info().
		Int("envelope_bytes", len(payload.DelegateAction)).
		Msg("Delegate action co-signed")

	return []queue.Message{{
		Queue: QueueRelay,
		Payload: RelayJob{
			DelegateAction: payload.DelegateAction,
			Signature:      hex.EncodeToString(rawSignature),
		},
	}}, nil
}
