package relayer

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/fastauth/go-migrate/internal/chain"
)

type fakeProvider struct {
	nonces          map[string]uint64
	blockHash       [32]byte
	blockHashCalls  int
	broadcasted     []*chain.SignedTransaction
	outcome         *chain.ExecutionOutcome
	broadcastErr    error
	accessKeyErrors map[string]error
}

func (p *fakeProvider) AccessKeyNonce(_ context.Context, accountID string, _ chain.PublicKey) (uint64, error) {
	if err := p.accessKeyErrors[accountID]; err != nil {
		return 0, err
	}
	return p.nonces[accountID], nil
}

func (p *fakeProvider) HasFullAccessKey(_ context.Context, _ string, _ chain.PublicKey) (bool, error) {
	return false, nil
}

func (p *fakeProvider) AccountsByPublicKey(_ context.Context, _ chain.PublicKey) ([]string, error) {
	return nil, nil
}

func (p *fakeProvider) RecentBlockHash(_ context.Context) ([32]byte, error) {
	p.blockHashCalls++
	return p.blockHash, nil
}

func (p *fakeProvider) MaxBlockHeight(_ context.Context) (uint64, error) {
	return 0, nil
}

func (p *fakeProvider) CallFunction(_ context.Context, _, _ string, _ any) ([]byte, error) {
	return nil, nil
}

func (p *fakeProvider) BroadcastTransaction(_ context.Context, signed *chain.SignedTransaction) (*chain.ExecutionOutcome, error) {
	p.broadcasted = append(p.broadcasted, signed)

	if p.broadcastErr != nil {
		return nil, p.broadcastErr
	}
	return p.outcome, nil
}

func newSignedDelegateAction(t *testing.T) *chain.SignedDelegateAction {
	t.Helper()

	return &chain.SignedDelegateAction{
		DelegateAction: chain.DelegateAction{
			SenderID:       "alice.near",
			ReceiverID:     "alice.near",
			Actions:        []chain.Action{chain.AddFullAccessKey(chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}})},
			Nonce:          5,
			MaxBlockHeight: 100,
			PublicKey:      chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}},
		},
		Signature: chain.Signature{KeyType: chain.KeyTypeED25519},
	}
}

func newServiceUnderTest(t *testing.T, provider *fakeProvider, ttl time.Duration) (*Service, *Signer) {
	t.Helper()

	entry, _ := signerEntry(t, "relayer-0.near")
	pool, err := NewSignerPool([]string{entry})
	require.NoError(t, err)

	return NewService(provider, pool, ttl), pool.signers[0]
}

func TestRelayDelegateActionWrapsAndBroadcasts(t *testing.T) {
	var blockHash [32]byte
	blockHash[0] = 0xbb

	provider := &fakeProvider{
		nonces:    map[string]uint64{"relayer-0.near": 41},
		blockHash: blockHash,
		outcome:   &chain.ExecutionOutcome{TransactionHash: "abc123"},
	}

	service, signer := newServiceUnderTest(t, provider, time.Minute)
	signed := newSignedDelegateAction(t)

	outcome, err := service.RelayDelegateAction(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "abc123", outcome.TransactionHash)

	require.Len(t, provider.broadcasted, 1)
	tx := provider.broadcasted[0].Transaction
	assert.Equal(t, "relayer-0.near", tx.SignerID)
	assert.Equal(t, signer.PublicKey, tx.PublicKey)
	assert.Equal(t, uint64(42), tx.Nonce)
	assert.Equal(t, "alice.near", tx.ReceiverID)
	assert.Equal(t, blockHash, tx.BlockHash)
	require.Len(t, tx.Actions, 1)
	assert.Equal(t, *signed, tx.Actions[0].Delegate)

	// The outer transaction must verify under the pool signer's key.
	hash, err := tx.Hash()
	require.NoError(t, err)
	pub, _ := signer.Key.Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, hash[:], provider.broadcasted[0].Signature.Data[:]))
}

func TestRelayDelegateActionCachesBlockHash(t *testing.T) {
	provider := &fakeProvider{
		nonces:  map[string]uint64{"relayer-0.near": 1},
		outcome: &chain.ExecutionOutcome{TransactionHash: "abc123"},
	}

	service, _ := newServiceUnderTest(t, provider, 10*time.Second)

	clock := time.Unix(1700000000, 0)
	service.now = func() time.Time { return clock }

	signed := newSignedDelegateAction(t)

	_, err := service.RelayDelegateAction(context.Background(), signed)
	require.NoError(t, err)
	_, err = service.RelayDelegateAction(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.blockHashCalls)

	clock = clock.Add(11 * time.Second)
	_, err = service.RelayDelegateAction(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.blockHashCalls)
}

func TestRelayDelegateActionSurfacesChainFailureStatus(t *testing.T) {
	provider := &fakeProvider{
		nonces: map[string]uint64{"relayer-0.near": 1},
		outcome: &chain.ExecutionOutcome{
			TransactionHash: "abc123",
			Status:          chain.ExecutionStatus{Failure: json.RawMessage(`{"ActionError":{}}`)},
		},
	}

	service, _ := newServiceUnderTest(t, provider, time.Minute)

	// An executed-but-failed transaction is not a relay error; the caller
	// inspects the outcome status.
	outcome, err := service.RelayDelegateAction(context.Background(), newSignedDelegateAction(t))
	require.NoError(t, err)
	assert.True(t, outcome.Status.Failed())
}

func TestRelayDelegateActionNonceQueryFailure(t *testing.T) {
	provider := &fakeProvider{
		accessKeyErrors: map[string]error{"relayer-0.near": assert.AnError},
	}

	service, _ := newServiceUnderTest(t, provider, time.Minute)

	_, err := service.RelayDelegateAction(context.Background(), newSignedDelegateAction(t))
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, provider.broadcasted)
}
