// Package derive resolves the deterministic public key a federated identity
// maps to, via a read-only view call on the key-derivation contract.
package derive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github/fastauth/go-migrate/internal/chain"
)

// Signature algorithm families selectable via domain_id.
const (
	DomainSECP256K1 uint32 = 0
	DomainED25519   uint32 = 1
)

// Client 派生密钥查询客户端
type Client struct {
	chain        chain.Provider
	contractID   string
	issuerDomain string
	domainID     uint32
}

// NewClient creates a derivation client against the given contract.
// issuerDomain is the bare host of the token issuer (no scheme, no slash).
func NewClient(provider chain.Provider, contractID, issuerDomain string, domainID uint32) *Client {
	return &Client{
		chain:        provider,
		contractID:   contractID,
		issuerDomain: issuerDomain,
		domainID:     domainID,
	}
}

type deriveArgs struct {
	Path        string `json:"path"`
	Predecessor string `json:"predecessor"`
	DomainID    uint32 `json:"domain_id"`
}

// IdentityPath encodes (issuer, provider, subject) into the deterministic
// derivation input.
func (c *Client) IdentityPath(providerID, subject string) string {
	return fmt.Sprintf("jwt#https://%s/#%s|%s", c.issuerDomain, providerID, subject)
}

// DerivePublicKey returns the deterministic public key for the identity
// path. The call is side-effect-free and recomputable; failures bubble up
// through the chain provider's retry policy.
func (c *Client) DerivePublicKey(ctx context.Context, providerID, subject string) (chain.PublicKey, error) {
	args := deriveArgs{
		Path:        c.IdentityPath(providerID, subject),
		Predecessor: c.contractID,
		DomainID:    c.domainID,
	}

	raw, err := c.chain.CallFunction(ctx, c.contractID, "derived_public_key", args)
	if err != nil {
		return chain.PublicKey{}, errors.Wrapf(err, "failed to derive public key for provider %s", providerID)
	}

	// The view method returns a JSON-encoded key string.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return chain.PublicKey{}, errors.Wrap(err, "derivation contract returned an unparsable result")
	}

	pk, err := chain.ParsePublicKey(encoded)
	if err != nil {
		return chain.PublicKey{}, errors.Wrap(err, "derivation contract returned an invalid public key")
	}

	return pk, nil
}
