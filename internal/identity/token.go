package identity

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenMinter mints the short-lived signed identity tokens the migration
// presents to the legacy service in place of a live provider login.
type TokenMinter struct {
	key      ed25519.PrivateKey
	issuer   string
	audience string
	ttl      time.Duration

	now func() time.Time
}

// NewTokenMinter creates a minter signing with EdDSA. issuerDomain is the
// bare host; the issuer claim carries the canonical "https://<domain>/"
// form the derivation path is built from.
func NewTokenMinter(key ed25519.PrivateKey, issuerDomain, audience string, ttl time.Duration) *TokenMinter {
	return &TokenMinter{
		key:      key,
		issuer:   fmt.Sprintf("https://%s/", issuerDomain),
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Claims 令牌声明：标准 OIDC 字段加上联合提供方标识
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email,omitempty"`
	ProviderID string `json:"provider_id"`
}

// Mint issues a token for the identity's given provider pair. Minting the
// same pair twice yields tokens with identical identity claims, so both
// claim and derive the same way.
func (m *TokenMinter) Mint(id *LegacyIdentity, provider Provider) (string, error) {
	now := m.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   provider.Subject,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        id.UserID,
		},
		Email:      id.Email,
		ProviderID: provider.ProviderID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.key)
	if err != nil {
		return "", errors.Wrapf(err, "failed to mint identity token for user %s", id.UserID)
	}

	return token, nil
}
