package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/fastauth/go-migrate/internal/chain"
	"github/fastauth/go-migrate/internal/identity"
	"github/fastauth/go-migrate/internal/pipeline"
	"github/fastauth/go-migrate/internal/queue"
)

type fakeMinter struct {
	minted []identity.Provider
}

func (m *fakeMinter) Mint(id *identity.LegacyIdentity, provider identity.Provider) (string, error) {
	m.minted = append(m.minted, provider)
	return "token-" + id.UserID + "-" + provider.ProviderID, nil
}

type fakeLegacy struct {
	claimed     []string
	recoveryKey chain.PublicKey
	claimErr    error
}

func (l *fakeLegacy) ClaimOidcToken(_ context.Context, token string) error {
	if l.claimErr != nil {
		return l.claimErr
	}
	l.claimed = append(l.claimed, token)
	return nil
}

func (l *fakeLegacy) UserCredentials(_ context.Context, _ string) (chain.PublicKey, error) {
	return l.recoveryKey, nil
}

type fakeDeriver struct {
	keys map[string]chain.PublicKey
}

func (d *fakeDeriver) DerivePublicKey(_ context.Context, providerID, subject string) (chain.PublicKey, error) {
	return d.keys[providerID+"|"+subject], nil
}

func intakeJob(t *testing.T, id identity.LegacyIdentity) *queue.Job {
	t.Helper()

	payload, err := json.Marshal(pipeline.IntakeJob{Identity: id})
	require.NoError(t, err)

	return &queue.Job{ID: uuid.New(), Queue: pipeline.QueueIntake, Payload: payload}
}

func TestIntakeEmitsOneProvisionJob(t *testing.T) {
	oldKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}}
	googleKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}}
	appleKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{3}}

	minter := &fakeMinter{}
	legacy := &fakeLegacy{recoveryKey: oldKey}
	deriver := &fakeDeriver{keys: map[string]chain.PublicKey{
		"google|sub-1": googleKey,
		"apple|sub-2":  appleKey,
	}}

	stage := pipeline.NewIntakeStage(minter, legacy, deriver)

	id := identity.LegacyIdentity{
		UserID: "user-1",
		Email:  "user-1@example.com",
		Providers: []identity.Provider{
			{ProviderID: "google", Subject: "sub-1"},
			{ProviderID: "apple", Subject: "sub-2"},
		},
	}

	next, err := stage.Handle(context.Background(), intakeJob(t, id))
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, pipeline.QueueProvision, next[0].Queue)

	out, ok := next[0].Payload.(pipeline.ProvisionJob)
	require.True(t, ok)
	assert.Equal(t, oldKey.String(), out.OldPublicKey)
	assert.Equal(t, []string{googleKey.String(), appleKey.String()}, out.NewPublicKeys)
	assert.Equal(t, "token-user-1-google", out.Token)

	// One token minted for the first provider, claimed exactly once.
	require.Len(t, minter.minted, 1)
	assert.Equal(t, "google", minter.minted[0].ProviderID)
	assert.Equal(t, []string{"token-user-1-google"}, legacy.claimed)
}

func TestIntakeIsDeterministicAcrossRuns(t *testing.T) {
	oldKey := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{1}}
	derived := chain.PublicKey{KeyType: chain.KeyTypeED25519, Data: [32]byte{2}}

	stage := pipeline.NewIntakeStage(
		&fakeMinter{},
		&fakeLegacy{recoveryKey: oldKey},
		&fakeDeriver{keys: map[string]chain.PublicKey{"google|sub-1": derived}},
	)

	id := identity.LegacyIdentity{
		UserID:    "user-1",
		Providers: []identity.Provider{{ProviderID: "google", Subject: "sub-1"}},
	}

	first, err := stage.Handle(context.Background(), intakeJob(t, id))
	require.NoError(t, err)

	second, err := stage.Handle(context.Background(), intakeJob(t, id))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIntakeSkipsIdentityWithoutProviders(t *testing.T) {
	stage := pipeline.NewIntakeStage(&fakeMinter{}, &fakeLegacy{}, &fakeDeriver{})

	next, err := stage.Handle(context.Background(), intakeJob(t, identity.LegacyIdentity{UserID: "user-1"}))
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestIntakeSurfacesClaimFailure(t *testing.T) {
	claimErr := assert.AnError
	stage := pipeline.NewIntakeStage(&fakeMinter{}, &fakeLegacy{claimErr: claimErr}, &fakeDeriver{})

	id := identity.LegacyIdentity{
		UserID:    "user-1",
		Providers: []identity.Provider{{ProviderID: "google", Subject: "sub-1"}},
	}

	_, err := stage.Handle(context.Background(), intakeJob(t, id))
	require.ErrorIs(t, err, claimErr)
}
