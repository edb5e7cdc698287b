package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Key type tags as they appear on the wire.
const (
	KeyTypeED25519   uint8 = 0
	KeyTypeSECP256K1 uint8 = 1
)

const ed25519Prefix = "ed25519:"

// PublicKey 链上公钥（类型标签 + 32 字节）
type PublicKey struct {
	KeyType uint8
	Data    [32]byte
}

// ParsePublicKey parses the human-readable "ed25519:<base58>" form.
func ParsePublicKey(s string) (PublicKey, error) {
	if !strings.HasPrefix(s, ed25519Prefix) {
		return PublicKey{}, errors.Errorf("unsupported public key %q: expected %q prefix", s, ed25519Prefix)
	}

	raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if err != nil {
		return PublicKey{}, errors.Wrapf(err, "failed to decode public key %q", s)
	}

	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, errors.Errorf("public key %q has %d bytes, want %d", s, len(raw), ed25519.PublicKeySize)
	}

	pk := PublicKey{KeyType: KeyTypeED25519}
	copy(pk.Data[:], raw)

	return pk, nil
}

// PublicKeyFromED25519 wraps a raw ed25519 public key.
func PublicKeyFromED25519(pub ed25519.PublicKey) PublicKey {
	pk := PublicKey{KeyType: KeyTypeED25519}
	copy(pk.Data[:], pub)

	return pk
}

func (pk PublicKey) String() string {
	return ed25519Prefix + base58.Encode(pk.Data[:])
}

// ED25519 returns the raw key usable with crypto/ed25519.
func (pk PublicKey) ED25519() ed25519.PublicKey {
	return ed25519.PublicKey(pk.Data[:])
}

// ImplicitAccountID returns the hex account id controlled by this key
// without prior registration.
func (pk PublicKey) ImplicitAccountID() string {
	return hex.EncodeToString(pk.Data[:])
}

// Signature 链上签名（类型标签 + 64 字节）
type Signature struct {
	KeyType uint8
	Data    [64]byte
}

// SignatureFromRaw wraps a raw 64-byte ed25519 signature.
func SignatureFromRaw(raw []byte) (Signature, error) {
	if len(raw) != ed25519.SignatureSize {
		return Signature{}, errors.Errorf("signature has %d bytes, want %d", len(raw), ed25519.SignatureSize)
	}

	sig := Signature{KeyType: KeyTypeED25519}
	copy(sig.Data[:], raw)

	return sig, nil
}

// ParseSecretKey parses the "ed25519:<base58>" form of a 64-byte secret key
// (seed followed by public key, the standard ed25519 expanded layout).
func ParseSecretKey(s string) (ed25519.PrivateKey, error) {
	if !strings.HasPrefix(s, ed25519Prefix) {
		return nil, errors.Errorf("unsupported secret key: expected %q prefix", ed25519Prefix)
	}

	raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode secret key")
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, errors.Errorf("secret key has %d bytes, want %d or %d", len(raw), ed25519.PrivateKeySize, ed25519.SeedSize)
	}
}
