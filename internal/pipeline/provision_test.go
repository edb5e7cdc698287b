package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/pipeline"
	"github/fastauth/go-migrate/internal/queue"
)

type fakeChainReader struct {
	accounts       []string
	nonces         map[string]uint64
	fullAccessKeys map[string]bool
	maxBlockHeight uint64
}

func (c *fakeChainReader) AccountsByPublicKey(_ context.Context, _ chain.PublicKey) ([]string, error) {
	return append([]string(nil), c.accounts...), nil
}

func (c *fakeChainReader) AccessKeyNonce(_ context.Context, accountID string, _ chain.PublicKey) (uint64, error) {
	nonce, ok := c.nonces[accountID]
	if !ok {
		return 0, errors.Wrapf(chain.ErrAccessKeyNotFound, "account %s", accountID)
	}
	return nonce, nil
}

func (c *fakeChainReader) HasFullAccessKey(_ context.Context, accountID string, publicKey chain.PublicKey) (bool, error) {
	return c.fullAccessKeys[accountID+"|"+publicKey.String()], nil
}

func (c *fakeChainReader) MaxBlockHeight(_ context.Context) (uint64, error) {
	return c.maxBlockHeight, nil
}

func provisionJob(t *testing.T, payload pipeline.ProvisionJob) *queue.Job {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return &queue.Job{ID: uuid.New(), Queue: pipeline.QueueProvision, Payload: raw}
}

func decodeSignJobs(t *testing.T, msgs []queue.Message) []chain.DelegateAction {
	t.Helper()

	envelopes := make([]chain.DelegateAction, 0, len(msgs))
	for _, msg := range msgs {
		require.Equal(t, pipeline.QueueSign, msg.Queue)

		payload, ok := msg.Payload.(pipeline.SignJob)
		require.True(t, ok)

		envelope, err := chain.DeserializeDelegateAction(payload.DelegateAction)
		require.NoError(t, err)

		envelopes = append(envelopes, envelope)
	}

	return envelopes
}

func TestProvisionBuildsOneEnvelopePerMissingGrant(t *testing.T) {
	oldKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}}
	newKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}}

	// x.near still needs the grant, y.near already holds the derived key.
	reader := &fakeChainReader{
		accounts:       []string{"x.near", "y.near"},
		nonces:         map[string]uint64{"x.near": 10, "y.near": 20, oldKey.ImplicitAccountID(): 5},
		fullAccessKeys: map[string]bool{"y.near|" + newKey.String(): true, oldKey.ImplicitAccountID() + "|" + newKey.String(): true},
		maxBlockHeight: 7100,
	}

	stage := pipeline.NewProvisionStage(reader)

	next, err := stage.Handle(context.Background(), provisionJob(t, pipeline.ProvisionJob{
		OldPublicKey:  oldKey.String(),
		NewPublicKeys: []string{newKey.String()},
		Token:         "token",
	}))
	require.NoError(t, err)

	envelopes := decodeSignJobs(t, next)
	require.Len(t, envelopes, 1)

	envelope := envelopes[0]
	assert.Equal(t, "x.near", envelope.SenderID)
	assert.Equal(t, "x.near", envelope.ReceiverID)
	assert.Equal(t, uint64(11), envelope.Nonce)
	assert.Equal(t, uint64(7100), envelope.MaxBlockHeight)
	assert.Equal(t, oldKey, envelope.PublicKey)
	require.Len(t, envelope.Actions, 1)
	assert.Equal(t, newKey, envelope.Actions[0].AddKey.PublicKey)
}

func TestProvisionIncludesImplicitAccount(t *testing.T) {
	oldKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}}
	newKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}}
	implicit := oldKey.ImplicitAccountID()

	reader := &fakeChainReader{
		accounts:       []string{"x.near"},
		nonces:         map[string]uint64{"x.near": 1, implicit: 2},
		maxBlockHeight: 100,
	}

	stage := pipeline.NewProvisionStage(reader)

	next, err := stage.Handle(context.Background(), provisionJob(t, pipeline.ProvisionJob{
		OldPublicKey:  oldKey.String(),
		NewPublicKeys: []string{newKey.String()},
	}))
	require.NoError(t, err)

	envelopes := decodeSignJobs(t, next)
	require.Len(t, envelopes, 2)
	assert.Equal(t, "x.near", envelopes[0].SenderID)
	assert.Equal(t, implicit, envelopes[1].SenderID)
}

func TestProvisionImplicitAccountNotDuplicated(t *testing.T) {
	oldKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}}
	newKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}}
	implicit := oldKey.ImplicitAccountID()

	reader := &fakeChainReader{
		accounts:       []string{implicit},
		nonces:         map[string]uint64{implicit: 1},
		maxBlockHeight: 100,
	}

	stage := pipeline.NewProvisionStage(reader)

	next, err := stage.Handle(context.Background(), provisionJob(t, pipeline.ProvisionJob{
		OldPublicKey:  oldKey.String(),
		NewPublicKeys: []string{newKey.String()},
	}))
	require.NoError(t, err)
	assert.Len(t, next, 1)
}

func TestProvisionSkipsAccountsWithoutLegacyKey(t *testing.T) {
	oldKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}}
	newKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}}

	// The legacy key was already rotated off every account; nothing to sign.
	reader := &fakeChainReader{
		accounts:       []string{"x.near"},
		nonces:         map[string]uint64{},
		maxBlockHeight: 100,
	}

	stage := pipeline.NewProvisionStage(reader)

	next, err := stage.Handle(context.Background(), provisionJob(t, pipeline.ProvisionJob{
		OldPublicKey:  oldKey.String(),
		NewPublicKeys: []string{newKey.String()},
	}))
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestProvisionNonceIncrementsAcrossGrants(t *testing.T) {
	oldKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}}
	keyA := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}}
	keyB := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{3}}

	reader := &fakeChainReader{
		accounts:       []string{"x.near", oldKey.ImplicitAccountID()},
		nonces:         map[string]uint64{"x.near": 10, oldKey.ImplicitAccountID(): 30},
		maxBlockHeight: 100,
	}

	stage := pipeline.NewProvisionStage(reader)

	next, err := stage.Handle(context.Background(), provisionJob(t, pipeline.ProvisionJob{
		OldPublicKey:  oldKey.String(),
		NewPublicKeys: []string{keyA.String(), keyB.String()},
	}))
	require.NoError(t, err)

	envelopes := decodeSignJobs(t, next)
	require.Len(t, envelopes, 4)

	// Each envelope of the same account consumes its own nonce.
	assert.Equal(t, uint64(11), envelopes[0].Nonce)
	assert.Equal(t, uint64(12), envelopes[1].Nonce)
	assert.Equal(t, uint64(31), envelopes[2].Nonce)
	assert.Equal(t, uint64(32), envelopes[3].Nonce)
}

func TestProvisionRejectsInvalidKeys(t *testing.T) {
	stage := pipeline.NewProvisionStage(&fakeChainReader{})

	_, err := stage.Handle(context.Background(), provisionJob(t, pipeline.ProvisionJob{
		OldPublicKey: "not-a-key",
	}))
	require.Error(t, err)
}
