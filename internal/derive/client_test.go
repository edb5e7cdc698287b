package derive_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/derive"
)

type fakeCaller struct {
	result []byte
	err    error

	gotContract string
	gotMethod   string
	gotArgs     any
}

func (f *fakeCaller) AccessKeyNonce(_ context.Context, _ string, _ chain.PublicKey) (uint64, error) {
	return 0, nil
}

func (f *fakeCaller) HasFullAccessKey(_ context.Context, _ string, _ chain.PublicKey) (bool, error) {
	return false, nil
}

func (f *fakeCaller) AccountsByPublicKey(_ context.Context, _ chain.PublicKey) ([]string, error) {
	return nil, nil
}

func (f *fakeCaller) RecentBlockHash(_ context.Context) ([32]byte, error) {
	return [32]byte{}, nil
}

func (f *fakeCaller) MaxBlockHeight(_ context.Context) (uint64, error) {
	return 0, nil
}

func (f *fakeCaller) CallFunction(_ context.Context, contractID, method string, args any) ([]byte, error) {
	f.gotContract = contractID
	f.gotMethod = method
	f.gotArgs = args

	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCaller) BroadcastTransaction(_ context.Context, _ *chain.SignedTransaction) (*chain.ExecutionOutcome, error) {
	return nil, nil
}

func TestIdentityPath(t *testing.T) {
	client := derive.NewClient(&fakeCaller{}, "mpc.near", "auth.example.com", derive.DomainED25519)

	assert.Equal(t, "jwt#https://auth.example.com/#google|sub-1", client.IdentityPath("google", "sub-1"))
}

func TestDerivePublicKey(t *testing.T) {
	expected := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{7}}

	result, err := json.Marshal(expected.String())
	require.NoError(t, err)

	caller := &fakeCaller{result: result}
	client := derive.NewClient(caller, "mpc.near", "auth.example.com", derive.DomainED25519)

	pk, err := client.DerivePublicKey(context.Background(), "google", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, expected, pk)

	assert.Equal(t, "mpc.near", caller.gotContract)
	assert.Equal(t, "derived_public_key", caller.gotMethod)

	args, err := json.Marshal(caller.gotArgs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"jwt#https://auth.example.com/#google|sub-1","predecessor":"mpc.near","domain_id":1}`, string(args))
}

func TestDerivePublicKeyRejectsBadResult(t *testing.T) {
	client := derive.NewClient(&fakeCaller{result: []byte(`"not-a-key"`)}, "mpc.near", "auth.example.com", derive.DomainED25519)

	_, err := client.DerivePublicKey(context.Background(), "google", "sub-1")
	require.Error(t, err)

	client = derive.NewClient(&fakeCaller{result: []byte(`{}`)}, "mpc.near", "auth.example.com", derive.DomainED25519)

	_, err = client.DerivePublicKey(context.Background(), "google", "sub-1")
	require.Error(t, err)
}
