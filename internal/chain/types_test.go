package chain_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/fastauth/go-migrate/internal/chain"
)

func TestParsePublicKeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	encoded := "ed25519:" + base58.Encode(pub)

	pk, err := chain.ParsePublicKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, chain.KeyTypeED25519, pk.KeyType)
	assert.Equal(t, encoded, pk.String())
	assert.Equal(t, ed25519.PublicKey(pub), pk.ED25519())
	assert.Equal(t, hex.EncodeToString(pub), pk.ImplicitAccountID())
}

func TestParsePublicKeyRejectsMalformedInput(t *testing.T) {
	_, err := chain.ParsePublicKey("secp256k1:abc")
	require.Error(t, err)

	_, err = chain.ParsePublicKey("ed25519:0OIl")
	require.Error(t, err)

	_, err = chain.ParsePublicKey("ed25519:" + base58.Encode([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestParseSecretKeyAcceptsExpandedAndSeedForm(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	expanded, err := chain.ParseSecretKey("ed25519:" + base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, ed25519.PublicKey(pub), expanded.Public())

	fromSeed, err := chain.ParseSecretKey("ed25519:" + base58.Encode(priv.Seed()))
	require.NoError(t, err)
	assert.Equal(t, ed25519.PrivateKey(priv), fromSeed)

	_, err = chain.ParseSecretKey(base58.Encode(priv))
	require.Error(t, err)

	_, err = chain.ParseSecretKey("ed25519:" + base58.Encode(priv[:16]))
	require.Error(t, err)
}

func TestSignatureFromRawRequires64Bytes(t *testing.T) {
	sig, err := chain.SignatureFromRaw(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, chain.KeyTypeED25519, sig.KeyType)

	_, err = chain.SignatureFromRaw(make([]byte, 63))
	require.Error(t, err)
}
