package relayer

import (
	"crypto/ed25519"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github/fastauth/go-migrate/internal/chain"
)

// Signer 出资账户签名者。mu 序列化同一签名者的 nonce 查询与广播，
// 避免进程内并发复用同一 nonce。
type Signer struct {
	AccountID string
	PublicKey chain.PublicKey
	Key       ed25519.PrivateKey

	mu sync.Mutex
}

// Lock serializes use of this signer within the process.
func (s *Signer) Lock() { s.mu.Lock() }

// Unlock releases the signer.
func (s *Signer) Unlock() { s.mu.Unlock() }

// ParseSigner parses the "account_id:ed25519:<base58 secret>" config form.
func ParseSigner(entry string) (*Signer, error) {
	accountID, secret, ok := strings.Cut(entry, ":")
	if !ok {
		return nil, errors.Errorf("invalid signer entry %q: want account_id:ed25519:<secret>", entry)
	}

	key, err := chain.ParseSecretKey(secret)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid signer key for %s", accountID)
	}

	pub, _ := key.Public().(ed25519.PublicKey)

	return &Signer{
		AccountID: accountID,
		PublicKey: chain.PublicKeyFromED25519(pub),
		Key:       key,
	}, nil
}

// SignerPool round-robins over the funding-account signers covering gas.
//
// Checkout/release is advisory: there is no mutual exclusion across
// processes, so running two relayer processes against the same signer set
// can reuse a nonce. A single process per signer set is assumed.
type SignerPool struct {
	signers []*Signer
	next    atomic.Uint64
}

// NewSignerPool parses the configured signer entries.
func NewSignerPool(entries []string) (*SignerPool, error) {
	if len(entries) == 0 {
		return nil, errors.New("at least one relayer signer is required")
	}

	signers := make([]*Signer, 0, len(entries))
	for _, entry := range entries {
		signer, err := ParseSigner(entry)
		if err != nil {
			return nil, err
		}

		signers = append(signers, signer)
	}

	return &SignerPool{signers: signers}, nil
}

// Size returns the number of signers.
func (p *SignerPool) Size() int {
	return len(p.signers)
}

// Checkout returns the next signer in round-robin order.
func (p *SignerPool) Checkout() *Signer {
	idx := (p.next.Add(1) - 1) % uint64(len(p.signers))

	return p.signers[idx]
}

// Release is a no-op; checkout is advisory.
func (p *SignerPool) Release(_ *Signer) {}
